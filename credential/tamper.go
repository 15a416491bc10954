package credential

import (
	"fmt"
	"strings"
)

// The derivations below are deterministic: the same input credential always
// produces the same invalid variant, so failures reproduce exactly.

// AlteredSignature returns a copy of the credential whose signature value no
// longer matches the signed content. The document stays well-formed and the
// rights assertion is untouched, so a verifier that rejects it must be doing
// so on cryptographic grounds.
func (c *Credential) AlteredSignature() (string, error) {
	doc := string(c.raw)
	open := strings.Index(doc, "SignatureValue")
	if open < 0 {
		return "", fmt.Errorf("credential has no SignatureValue element")
	}
	gt := strings.IndexByte(doc[open:], '>')
	if gt < 0 {
		return "", fmt.Errorf("credential has an unterminated SignatureValue tag")
	}
	start := open + gt + 1
	length := strings.Index(doc[start:], "</")
	if length < 0 {
		return "", fmt.Errorf("credential has an unterminated SignatureValue element")
	}
	altered := scrambleBase64(doc[start : start+length])
	if altered == doc[start:start+length] {
		return "", fmt.Errorf("signature value could not be altered")
	}
	return doc[:start] + altered + doc[start+length:], nil
}

// scrambleBase64 reverses the order of the base64 alphabet characters in s,
// leaving whitespace and '=' padding in place so the text remains legal
// base64 of the same length. If the sequence is a palindrome it rotates by
// one instead.
func scrambleBase64(s string) string {
	chars := []byte(s)
	var positions []int
	for i, ch := range chars {
		if isBase64Char(ch) {
			positions = append(positions, i)
		}
	}
	if len(positions) < 2 {
		return s
	}
	out := append([]byte(nil), chars...)
	for i, pos := range positions {
		out[pos] = chars[positions[len(positions)-1-i]]
	}
	if string(out) == s {
		for i, pos := range positions {
			out[pos] = chars[positions[(i+1)%len(positions)]]
		}
	}
	return string(out)
}

func isBase64Char(ch byte) bool {
	return ch >= 'A' && ch <= 'Z' || ch >= 'a' && ch <= 'z' || ch >= '0' && ch <= '9' ||
		ch == '+' || ch == '/'
}

// CorruptedPrefix returns a copy of the credential with the leading portion
// of the document removed, cutting into the middle of the root element's
// opening tag. The result has an unmatched closing tag, so no parser accepts
// it as well-formed markup. This is a different failure class than
// AlteredSignature: the target should report a malformed document, not a
// failed signature check.
func (c *Credential) CorruptedPrefix() (string, error) {
	const rootOpen = "<signed-credential"
	doc := string(c.raw)
	i := strings.Index(doc, rootOpen)
	if i < 0 {
		return "", fmt.Errorf("credential has no signed-credential root element")
	}
	return doc[i+len(rootOpen)/2:], nil
}

// Truncated returns the leading three quarters of the credential document.
// The unclosed trailing elements make it unparseable, and the cut point falls
// inside the signature block for any normally-sized credential.
func (c *Credential) Truncated() string {
	return string(c.raw[:len(c.raw)*3/4])
}
