// Package streamscrub redacts passwords from diagnostic output.
//
// pdftl logs arguments, file names and engine messages to stderr. A
// password given with input_pw, owner_pw or user_pw, or typed at a prompt,
// must never reach that stream in any of the spellings a PDF tool might
// print it in.
package streamscrub

import (
	"bytes"
	"encoding/hex"
	"io"
	"sort"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/aledsdavies/pdftl/core/invariant"
)

// Placeholder replaces every redacted password.
const Placeholder = "***"

// Scrubber is an io.Writer that replaces registered passwords before they
// reach the underlying writer.
type Scrubber struct {
	mu      sync.Mutex // Protects all fields below
	out     io.Writer
	secrets []secretEntry // Sorted longest first
	carry   []byte        // Rolling window for chunk-boundary secrets
	maxLen  int           // Longest registered pattern
}

type secretEntry struct {
	pattern     []byte
	placeholder []byte
}

// New creates a Scrubber that writes to w.
func New(w io.Writer) *Scrubber {
	invariant.NotNil(w, "writer")
	return &Scrubber{out: w}
}

// RegisterSecret registers one exact byte pattern.
func (s *Scrubber) RegisterSecret(secret, placeholder []byte) {
	invariant.Precondition(len(secret) > 0, "secret cannot be empty")
	invariant.Precondition(len(placeholder) > 0, "placeholder cannot be empty")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerNoLock(secret, placeholder)
}

func (s *Scrubber) registerNoLock(secret, placeholder []byte) {
	// A pattern inside its own placeholder would grow on every rescan.
	if bytes.Contains(placeholder, secret) {
		return
	}
	for _, e := range s.secrets {
		if bytes.Equal(e.pattern, secret) {
			return
		}
	}
	s.secrets = append(s.secrets, secretEntry{
		pattern:     append([]byte(nil), secret...),
		placeholder: placeholder,
	})
	sort.SliceStable(s.secrets, func(i, j int) bool {
		return len(s.secrets[i].pattern) > len(s.secrets[j].pattern)
	})
	if len(secret) > s.maxLen {
		s.maxLen = len(secret)
	}
}

// RegisterPassword registers a password and the encodings it takes inside
// PDF syntax and URIs. An empty password is ignored.
func (s *Scrubber) RegisterPassword(password string) {
	if password == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholder := []byte(Placeholder)
	for _, v := range variants(password) {
		s.registerNoLock([]byte(v), placeholder)
	}
}

// variants lists the spellings of a password: raw, PDF hex string in both
// cases, UTF-16BE hex with a byte order mark, PDF literal string escapes
// and URI percent-encoding.
func variants(password string) []string {
	raw := []byte(password)
	h := hex.EncodeToString(raw)

	units := utf16.Encode([]rune(password))
	wide := make([]byte, 0, 2+2*len(units))
	wide = append(wide, 0xFE, 0xFF)
	for _, u := range units {
		wide = append(wide, byte(u>>8), byte(u))
	}
	w := hex.EncodeToString(wide)

	literal := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(password)

	return []string{
		password,
		h, strings.ToUpper(h),
		w, strings.ToUpper(w),
		literal,
		percentEncode(raw, false), percentEncode(raw, true),
	}
}

func percentEncode(b []byte, upper bool) string {
	digits := "0123456789abcdef"
	if upper {
		digits = "0123456789ABCDEF"
	}
	out := make([]byte, 0, len(b)*3)
	for _, c := range b {
		out = append(out, '%', digits[c>>4], digits[c&0xF])
	}
	return string(out)
}

// SecretCount returns the number of registered patterns.
func (s *Scrubber) SecretCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.secrets)
}

// scrubAll replaces every pattern, longest first. Caller holds mu.
func (s *Scrubber) scrubAll(buf []byte) []byte {
	for _, e := range s.secrets {
		buf = bytes.ReplaceAll(buf, e.pattern, e.placeholder)
	}
	return buf
}

// Write scrubs p and forwards it, holding back enough bytes to catch a
// password split across two writes.
func (s *Scrubber) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxLen == 0 {
		if _, err := s.out.Write(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	buf := append(append([]byte{}, s.carry...), p...)
	result := s.scrubAll(buf)

	// Hold back at least 3 bytes so a multi-byte code point is never split.
	carrySize := max(s.maxLen-1, 3)
	invariant.Postcondition(carrySize < 1024*1024, "carry must stay small")

	if len(result) <= carrySize {
		s.carry = append(s.carry[:0], result...)
		return len(p), nil
	}

	toWrite := result[:len(result)-carrySize]
	s.carry = append(s.carry[:0], result[len(result)-carrySize:]...)
	if _, err := s.out.Write(toWrite); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush writes the held-back bytes.
func (s *Scrubber) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushNoLock()
}

func (s *Scrubber) flushNoLock() error {
	if len(s.carry) == 0 {
		return nil
	}
	result := s.scrubAll(s.carry)
	_, err := s.out.Write(result)
	clear(s.carry)
	s.carry = s.carry[:0]
	return err
}

// Close flushes and forgets every registered password.
func (s *Scrubber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.flushNoLock()
	for _, e := range s.secrets {
		clear(e.pattern)
	}
	s.secrets = nil
	s.maxLen = 0
	return err
}
