package jdfs

import (
	"regexp"
	"strconv"
	"strings"
)

// Pointer kinds and the content namespace
const (
	kindDir      = "dir"
	kindFile     = "file"
	contentSpace = "FILES"
)

// Keys are matched after the "<parent>/" prefix has been stripped. Some
// stores drop the trailing slash of a file pointer without attributes.
var (
	filePointerPattern = regexp.MustCompile(`^([a-f0-9]{32})/file/(.+?)/(\d+)/(\d+)(?:/(.*))?$`)
	dirPointerPattern  = regexp.MustCompile(`^([a-f0-9]{32})/dir/(.+?)(/(.+))?$`)
)

// ContentObjectKey returns the key of the content object for a file marker.
func ContentObjectKey(marker string) string {
	return contentSpace + "/" + marker + "/0"
}

// contentPrefix is the namespace holding every content object of marker.
func contentPrefix(marker string) string {
	return contentSpace + "/" + marker + "/"
}

// DirPointerKey encodes a directory pointer. encodedName must already be
// filtered through the bucket's filename cipher.
func DirPointerKey(parent, self, encodedName, attributes string) string {
	key := parent + "/" + self + "/" + kindDir + "/" + encodedName
	if attributes != "" {
		key += "/" + attributes
	}
	return key
}

// FilePointerKey encodes a file pointer.
func FilePointerKey(parent, self, encodedName string, size, blockSize int64, attributes string) string {
	return strings.Join([]string{
		parent,
		self,
		kindFile,
		encodedName,
		strconv.FormatInt(size, 10),
		strconv.FormatInt(blockSize, 10),
		attributes,
	}, "/")
}

// decodePointer parses key, a pointer key with the "<parent>/" prefix
// removed. Keys that are not pointers report false.
func decodePointer(parent, key string, names FilenameCipher) (DirectoryItem, bool, error) {
	if m := filePointerPattern.FindStringSubmatch(key); m != nil {
		name, err := names.DecryptName(m[2], m[1])
		if err != nil {
			return DirectoryItem{}, false, err
		}
		size, err := strconv.ParseInt(m[3], 10, 64)
		if err != nil {
			return DirectoryItem{}, false, nil
		}
		blockSize, err := strconv.ParseInt(m[4], 10, 64)
		if err != nil {
			return DirectoryItem{}, false, nil
		}
		return DirectoryItem{
			Name:         name,
			Marker:       m[1],
			ParentMarker: parent,
			Size:         size,
			BlockSize:    blockSize,
			Attributes:   m[5],
			PointerKey:   parent + "/" + key,
			FileKey:      ContentObjectKey(m[1]),
		}, true, nil
	}

	if m := dirPointerPattern.FindStringSubmatch(key); m != nil {
		name, err := names.DecryptName(m[2], m[1])
		if err != nil {
			return DirectoryItem{}, false, err
		}
		return DirectoryItem{
			Name:         name,
			Marker:       m[1],
			ParentMarker: parent,
			IsDirectory:  true,
			Attributes:   m[4],
			PointerKey:   parent + "/" + key,
		}, true, nil
	}

	return DirectoryItem{}, false, nil
}

// splitPath breaks a virtual path into names. Both separators are accepted
// and empty segments dropped.
func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}

// splitParent returns the parent segments and final name of p.
func splitParent(p string) ([]string, string, error) {
	parts := splitPath(p)
	if len(parts) == 0 {
		return nil, "", NewValidationError("path", p, "path names the bucket root")
	}
	return parts[:len(parts)-1], parts[len(parts)-1], nil
}
