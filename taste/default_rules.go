package taste

// DefaultRules are the built-in signature rules. Their names are the rule
// flavors routed by the default inspector table.
var DefaultRules = []Rule{
	{Name: "zip_file", Patterns: []Pattern{{Hex: "504b0304"}}},
	{Name: "encrypted_zip", Patterns: []Pattern{{Hex: "504b0304"}, {Offset: 6, Hex: "01", Mask: "01"}}},
	{Name: "gzip_file", Patterns: []Pattern{{Hex: "1f8b"}}},
	{Name: "tar_file", Patterns: []Pattern{{Offset: 257, Text: "ustar"}}},
	{Name: "bzip2_file", Patterns: []Pattern{{Text: "BZh"}}},
	{Name: "zstd_file", Patterns: []Pattern{{Hex: "28b52ffd"}}},
	{Name: "lz4_file", Patterns: []Pattern{{Hex: "04224d18"}}},
	{Name: "xz_file", Patterns: []Pattern{{Hex: "fd377a585a00"}}},
	{Name: "rar_file", Patterns: []Pattern{{Text: "Rar!\x1a\x07"}}},
	{Name: "7zip_file", Patterns: []Pattern{{Hex: "377abcaf271c"}}},
	{Name: "mz_file", Patterns: []Pattern{{Text: "MZ"}}},
	{Name: "elf_file", Patterns: []Pattern{{Hex: "7f454c46"}}},
	{Name: "macho_file", Patterns: []Pattern{{Hex: "cffaedfe"}}},
	{Name: "pdf_file", Patterns: []Pattern{{Text: "%PDF-", Within: 1024}}},
	{Name: "olecf_file", Patterns: []Pattern{{Hex: "d0cf11e0a1b11ae1"}}},
	{Name: "ooxml_file", Patterns: []Pattern{{Hex: "504b0304"}, {Text: "[Content_Types].xml", Within: 4096}}},
	{Name: "png_file", Patterns: []Pattern{{Hex: "89504e470d0a1a0a"}}},
	{Name: "jpeg_file", Patterns: []Pattern{{Hex: "ffd8ff"}}},
	{Name: "gif_file", Patterns: []Pattern{{Text: "GIF8"}}},
	{Name: "html_file", Patterns: []Pattern{{Text: "<html", Within: 1024}}},
	{Name: "xml_file", Patterns: []Pattern{{Text: "<?xml"}}},
	{Name: "rtf_file", Patterns: []Pattern{{Text: "{\\rtf"}}},
}

// DefaultFilenameRules flag script and shortcut names that carry no
// reliable magic bytes.
var DefaultFilenameRules = []FilenameRule{
	{Pattern: "*.{js,jse,mjs}", Flavor: "javascript_name"},
	{Pattern: "*.{vbs,vbe}", Flavor: "vbscript_name"},
	{Pattern: "*.ps1", Flavor: "powershell_name"},
	{Pattern: "*.{bat,cmd}", Flavor: "batch_name"},
	{Pattern: "*.lnk", Flavor: "shortcut_name"},
}

// MustDefault compiles DefaultRules. It panics on error, which would be a
// bug in the table above.
func MustDefault() *RuleSet {
	rs, err := Compile(DefaultRules)
	if err != nil {
		panic(err)
	}
	return rs
}
