package jdfs

import (
	"encoding/xml"
	"errors"
	"strings"
)

// Well-known objects at the root of every advanced bucket
const (
	KeyFileObject = "0.key"
	DirObject     = "0.dir"
)

// KeyFile is the per-bucket encryption record stored in 0.key.
type KeyFile struct {
	EncryptNewFiles  bool
	EncryptFilenames bool
	EncryptionKey    string
	DecryptionKeys   []string
}

type keyFileXML struct {
	XMLName          xml.Name `xml:"keyfile"`
	EncryptNewFiles  string   `xml:"encryptnewfiles"`
	EncryptFilenames string   `xml:"encryptfilenames"`
	EncryptionKey    string   `xml:"encryptionkey"`
	DecryptionKeys   struct {
		Values []string `xml:"value"`
	} `xml:"decryptionkeys"`
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// NewKeyFile creates a key file with a fresh random encryption key.
func NewKeyFile(encryptNewFiles, encryptFilenames bool) (*KeyFile, error) {
	key, err := GenerateEncryptionKey()
	if err != nil {
		return nil, err
	}
	return &KeyFile{
		EncryptNewFiles:  encryptNewFiles,
		EncryptFilenames: encryptFilenames,
		EncryptionKey:    key,
	}, nil
}

// MarshalKeyFile renders kf as the 0.key document.
func MarshalKeyFile(kf *KeyFile) ([]byte, error) {
	if kf == nil {
		return nil, errors.New("key file cannot be nil")
	}
	doc := keyFileXML{
		EncryptNewFiles:  flag(kf.EncryptNewFiles),
		EncryptFilenames: flag(kf.EncryptFilenames),
		EncryptionKey:    kf.EncryptionKey,
	}
	doc.DecryptionKeys.Values = kf.DecryptionKeys
	return xml.Marshal(doc)
}

// UnmarshalKeyFile parses a 0.key document. A document that does not parse
// was almost always decrypted with the wrong key, so the failure is a
// CryptographicError.
func UnmarshalKeyFile(data []byte) (*KeyFile, error) {
	var doc keyFileXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &CryptographicError{
			Path:    KeyFileObject,
			Message: "unable to load key file, invalid bucket password",
			Err:     err,
		}
	}
	if doc.EncryptionKey == "" {
		return nil, &CryptographicError{
			Path:    KeyFileObject,
			Message: "key file has no encryption key",
		}
	}
	// Any flag value other than "1" reads as off.
	return &KeyFile{
		EncryptNewFiles:  strings.TrimSpace(doc.EncryptNewFiles) == "1",
		EncryptFilenames: strings.TrimSpace(doc.EncryptFilenames) == "1",
		EncryptionKey:    doc.EncryptionKey,
		DecryptionKeys:   doc.DecryptionKeys.Values,
	}, nil
}
