package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/paulschiretz/pgl-dirsync/pkg/logarchive"
	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
)

const (
	tagRoot = "dirsync"
	tagDir  = "directory"

	attrLogFile            = "logfile"
	attrSkipLinks          = "skiplinks"
	attrTimestampWriteBack = "timestampwriteback"
	attrTimestampDiff      = "timestampdiff"
	attrLogLevel           = "loglevel"
	attrLogArchive         = "logarchive"
	attrBufferSizeKB       = "buffersizekb"

	attrName               = "name"
	attrSource             = "src"
	attrDestination        = "dst"
	attrWithSubfolders     = "withsubfolders"
	attrVerify             = "verify"
	attrFileInclude        = "include"
	attrFileExclude        = "exclude"
	attrDirInclude         = "dirinclude"
	attrDirExclude         = "direxclude"
	attrCopyAll            = "copyall"
	attrCopyNew            = "copynew"
	attrCopyModified       = "copymodified"
	attrCopyLarger         = "copylarger"
	attrCopyLargerModified = "copylargermodified"
	attrDeleteFiles        = "delfiles"
	attrDeleteDirs         = "deldirs"
	attrEnabled            = "enabled"
)

// doctype is written in front of every saved file so the layout stays
// readable by validating parsers.
const doctype = `DOCTYPE dirsync [
<!ELEMENT dirsync (directory*)>
<!ATTLIST dirsync logfile CDATA ''>
<!ATTLIST dirsync timestampwriteback (true|false) 'false'>
<!ATTLIST dirsync timestampdiff CDATA '0'>
<!ATTLIST dirsync skiplinks (true|false) 'false'>
<!ATTLIST dirsync loglevel CDATA 'info'>
<!ATTLIST dirsync logarchive (none|gzip|zstd) 'none'>
<!ATTLIST dirsync buffersizekb CDATA '256'>

<!ELEMENT directory EMPTY>
<!ATTLIST directory name CDATA #REQUIRED>
<!ATTLIST directory src CDATA #REQUIRED>
<!ATTLIST directory dst CDATA #REQUIRED>
<!ATTLIST directory withsubfolders (true|false) 'false'>
<!ATTLIST directory verify (true|false) 'false'>
<!ATTLIST directory include CDATA ''>
<!ATTLIST directory exclude CDATA ''>
<!ATTLIST directory dirinclude CDATA ''>
<!ATTLIST directory direxclude CDATA ''>
<!ATTLIST directory logfile CDATA ''>
<!ATTLIST directory copyall (true|false) 'false'>
<!ATTLIST directory copylarger (true|false) 'false'>
<!ATTLIST directory copylargermodified (true|false) 'false'>
<!ATTLIST directory copymodified (true|false) 'false'>
<!ATTLIST directory copynew (true|false) 'false'>
<!ATTLIST directory delfiles (true|false) 'false'>
<!ATTLIST directory deldirs (true|false) 'false'>
<!ATTLIST directory enabled (true|false) 'true'>
]`

// LoadXML reads a configuration in the XML layout. Missing attributes take
// their DTD defaults; booleans are true only for a case-insensitive "true".
func LoadXML(path string) (Config, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	root := doc.SelectElement(tagRoot)
	if root == nil {
		return Config{}, fmt.Errorf("error parsing config file %s: missing <%s> root element", path, tagRoot)
	}

	config := NewDefault()
	config.LogFile = root.SelectAttrValue(attrLogFile, "")
	config.SkipLinks = boolAttr(root, attrSkipLinks, false)
	config.WriteTimestampBack = boolAttr(root, attrTimestampWriteBack, false)
	config.TimestampDiff = parseTimestampDiff(root.SelectAttrValue(attrTimestampDiff, "0"))
	config.LogLevel = root.SelectAttrValue(attrLogLevel, config.LogLevel)
	config.BufferSizeKB = intAttr(root, attrBufferSizeKB, config.BufferSizeKB)

	format, err := logarchive.ParseFormat(root.SelectAttrValue(attrLogArchive, ""))
	if err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	config.LogArchive = format

	config.Directories = nil
	for _, el := range root.SelectElements(tagDir) {
		config.Directories = append(config.Directories, Directory{
			Name:               el.SelectAttrValue(attrName, ""),
			Source:             el.SelectAttrValue(attrSource, ""),
			Destination:        el.SelectAttrValue(attrDestination, ""),
			LogFile:            el.SelectAttrValue(attrLogFile, ""),
			WithSubfolders:     boolAttr(el, attrWithSubfolders, false),
			Verify:             boolAttr(el, attrVerify, false),
			FileInclude:        el.SelectAttrValue(attrFileInclude, ""),
			FileExclude:        el.SelectAttrValue(attrFileExclude, ""),
			DirInclude:         el.SelectAttrValue(attrDirInclude, ""),
			DirExclude:         el.SelectAttrValue(attrDirExclude, ""),
			CopyAll:            boolAttr(el, attrCopyAll, false),
			CopyNew:            boolAttr(el, attrCopyNew, false),
			CopyModified:       boolAttr(el, attrCopyModified, false),
			CopyLarger:         boolAttr(el, attrCopyLarger, false),
			CopyLargerModified: boolAttr(el, attrCopyLargerModified, false),
			DeleteFiles:        boolAttr(el, attrDeleteFiles, false),
			DeleteDirs:         boolAttr(el, attrDeleteDirs, false),
			Enabled:            boolAttr(el, attrEnabled, true),
		})
	}
	return config, nil
}

// SaveXML writes c in the XML layout.
func SaveXML(c Config, path string) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateDirective(doctype)

	root := doc.CreateElement(tagRoot)
	root.CreateAttr(attrLogFile, c.LogFile)
	root.CreateAttr(attrTimestampWriteBack, strconv.FormatBool(c.WriteTimestampBack))
	root.CreateAttr(attrTimestampDiff, strconv.Itoa(c.TimestampDiff))
	root.CreateAttr(attrSkipLinks, strconv.FormatBool(c.SkipLinks))
	root.CreateAttr(attrLogLevel, c.LogLevel)
	archive := c.LogArchive
	if archive == "" {
		archive = logarchive.None
	}
	root.CreateAttr(attrLogArchive, archive.String())
	root.CreateAttr(attrBufferSizeKB, strconv.Itoa(c.BufferSizeKB))

	for _, d := range c.Directories {
		el := root.CreateElement(tagDir)
		el.CreateAttr(attrName, d.Name)
		el.CreateAttr(attrSource, d.Source)
		el.CreateAttr(attrDestination, d.Destination)
		el.CreateAttr(attrWithSubfolders, strconv.FormatBool(d.WithSubfolders))
		el.CreateAttr(attrVerify, strconv.FormatBool(d.Verify))
		el.CreateAttr(attrFileInclude, d.FileInclude)
		el.CreateAttr(attrFileExclude, d.FileExclude)
		el.CreateAttr(attrDirInclude, d.DirInclude)
		el.CreateAttr(attrDirExclude, d.DirExclude)
		el.CreateAttr(attrLogFile, d.LogFile)
		el.CreateAttr(attrCopyAll, strconv.FormatBool(d.CopyAll))
		el.CreateAttr(attrCopyLarger, strconv.FormatBool(d.CopyLarger))
		el.CreateAttr(attrCopyLargerModified, strconv.FormatBool(d.CopyLargerModified))
		el.CreateAttr(attrCopyModified, strconv.FormatBool(d.CopyModified))
		el.CreateAttr(attrCopyNew, strconv.FormatBool(d.CopyNew))
		el.CreateAttr(attrDeleteFiles, strconv.FormatBool(d.DeleteFiles))
		el.CreateAttr(attrDeleteDirs, strconv.FormatBool(d.DeleteDirs))
		el.CreateAttr(attrEnabled, strconv.FormatBool(d.Enabled))
	}

	doc.Indent(2)
	if err := doc.WriteToFile(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func boolAttr(el *etree.Element, key string, dflt bool) bool {
	return strings.EqualFold(el.SelectAttrValue(key, strconv.FormatBool(dflt)), "true")
}

func intAttr(el *etree.Element, key string, dflt int) int {
	v := el.SelectAttrValue(key, "")
	if v == "" {
		return dflt
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		plog.Warn("Ignoring invalid number in config file", "attribute", key, "value", v)
		return dflt
	}
	return n
}

// parseTimestampDiff accepts decimal, hexadecimal (0x) and octal (0) notation.
// Unparseable or out of range values become 0.
func parseTimestampDiff(s string) int {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 0, 32)
	if err != nil {
		plog.Warn("Ignoring invalid timestamp difference in config file", "value", s)
		return 0
	}
	return ClampTimestampDiff(int(n))
}
