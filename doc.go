// Package jdfs provides a virtual, optionally encrypted, hierarchical
// filesystem stored in an S3-compatible object store.
//
// # Overview
//
// Object stores are flat: a bucket is a sorted set of keys. jdfs layers a
// directory tree on top by storing one empty "pointer" object per file or
// directory. A pointer key starts with the marker of its parent directory,
// so listing a directory is a single prefix listing. File content lives in
// a separate namespace keyed by the file's own marker.
//
// Storage is compatible with existing advanced buckets: every logical bucket
// is a key prefix inside the per-account S3 bucket jd2-<md5(accessKey)>-us.
//
// # Object Layout
//
// Within a logical bucket:
//   - 0.dir: empty marker object; the bucket exists once it is written
//   - 0.key: optional XML key file holding the master encryption key
//   - <parent>/<self>/dir/<name>[/<attributes>]: directory pointer
//   - <parent>/<self>/file/<name>/<size>/<blockSize>/<attributes>: file pointer
//   - FILES/<self>/0: file content
//
// The root directory's marker is "ROOT"; every other marker is 32 random
// lowercase hex characters.
//
// # Basic Usage
//
//	conn, err := jdfs.New(&jdfs.Config{
//	    Credential: jdfs.Credential{
//	        AccessKeyID:     "AKIA...",
//	        SecretAccessKey: "secret",
//	    },
//	    PasswordFunc: func(hint string) (string, bool) {
//	        return promptFor(hint)
//	    },
//	})
//	if err != nil {
//	    panic(err)
//	}
//
//	bucket := conn.AdvancedBucket("photos")
//	if err := conn.CreateBucket(ctx, bucket, "bucket-password", true); err != nil {
//	    panic(err)
//	}
//
//	data := []byte("hello")
//	err = conn.WriteFile(ctx, bucket, "/2024/a.txt", bytes.NewReader(data), int64(len(data)))
//
//	rc, err := conn.ReadFile(ctx, bucket, "/2024/a.txt")
//	defer rc.Close()
//
// A bucket can also be used through absfs:
//
//	fsys, err := jdfs.NewFileSystem(ctx, conn, bucket)
//	f, _ := fsys.Create("/notes.txt")
//	f.WriteString("written on Close")
//	f.Close()
//
// # Encryption
//
// Object content is encrypted with AES-256 in counter mode. The key and IV
// are derived from a secret and a per-object random salt using OpenSSL's
// EVP_BytesToKey with MD5. The object's metadata carries the salt and a
// salted MD5 fingerprint of the secret, which is how the right password is
// picked from the key ring when the object is read.
//
// Buckets created with a password store a random master key in 0.key,
// itself encrypted with the bucket password. New files are encrypted with
// the master key. With filename encryption, names in pointer keys are
// encrypted with AES-256-CBC keyed from the master key, using the first 16
// bytes of the node's marker as IV.
//
// These formats are fixed by data already in the wild. They provide
// confidentiality only: there is no authentication of content or names, and
// MD5-based key derivation is weak against offline guessing.
//
// # Passwords
//
// Each Connection owns a KeyRing of candidate passwords. When no cached
// password matches an object, PasswordFunc is asked once with a hint: the
// string "Bucket Password" for key files, otherwise the object path.
// Declining yields ErrKeyNotFound; a supplied password that still does not
// match yields a *CryptographicError.
//
// # Requests
//
// Requests are signed with AWS signature version 2 and sent through
// Config.Transport. Store errors surface as *ProtocolError and transport
// failures as *TransportError; nothing is retried except the visibility poll
// after creating an S3 bucket.
package jdfs
