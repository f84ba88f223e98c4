package jdfs

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var (
	aclSubresource     = regexp.MustCompile(`[&?]acl($|=|&)`)
	torrentSubresource = regexp.MustCompile(`[&?]torrent($|=|&)`)
)

// EscapePath percent-encodes an object path the way it is sent and signed.
// Path separators are kept.
func EscapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

// StringToSign builds the canonical string for AWS signature version 2.
// resource is the escaped request path with an optional query string.
// virtualHostBucket is the bucket name when the request is addressed to
// <bucket>.<endpoint>, and empty for path-style requests.
func StringToSign(method, resource string, header http.Header, virtualHostBucket string) string {
	var contentMD5, contentType, date string
	amz := make(map[string]string)
	for name, values := range header {
		lk := strings.ToLower(name)
		v := strings.Join(values, ",")
		switch {
		case lk == "content-md5":
			contentMD5 = v
		case lk == "content-type":
			contentType = v
		case lk == "date":
			date = v
		case strings.HasPrefix(lk, "x-amz-"):
			amz[lk] = strings.TrimSpace(v)
		}
	}
	if _, ok := amz["x-amz-date"]; ok {
		date = ""
	}

	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(contentMD5)
	b.WriteByte('\n')
	b.WriteString(contentType)
	b.WriteByte('\n')
	b.WriteString(date)
	b.WriteByte('\n')

	keys := make([]string, 0, len(amz))
	for k := range amz {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(amz[k])
		b.WriteByte('\n')
	}

	path, query, hasQuery := strings.Cut(resource, "?")
	if virtualHostBucket != "" {
		b.WriteString("/" + virtualHostBucket)
	}
	b.WriteString(path)
	if hasQuery {
		q := "?" + query
		switch {
		case aclSubresource.MatchString(q):
			b.WriteString("?acl")
		case torrentSubresource.MatchString(q):
			b.WriteString("?torrent")
		}
	}
	return b.String()
}

// Sign returns Base64(HMAC-SHA1(secret, stringToSign)).
func Sign(secret, stringToSign string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// AuthorizationHeader returns the Authorization value for a request.
func AuthorizationHeader(cred Credential, stringToSign string) string {
	return "AWS " + cred.AccessKeyID + ":" + Sign(cred.SecretAccessKey, stringToSign)
}
