package linbus

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robotalks/lin.go/pkg/lin"
)

// ParseID parses a frame identifier, decimal or 0x-prefixed hex.
func ParseID(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil || byte(v) > lin.MaxID {
		return 0, fmt.Errorf("%w: identifier %q", lin.ErrInvalidArgument, s)
	}
	return byte(v), nil
}

// ParseData parses a hex payload. Bytes may be separated by spaces or
// colons.
func ParseData(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':':
			return -1
		}
		return r
	}, strings.TrimPrefix(s, "0x"))
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: data %q: %v", lin.ErrInvalidArgument, s, err)
	}
	if len(data) > lin.MaxDataLen {
		return nil, fmt.Errorf("%w: %d data bytes", lin.ErrInvalidArgument, len(data))
	}
	return data, nil
}

// Subscription is a parsed subscription spec.
type Subscription struct {
	ID     byte
	Length int
}

// ParseSubscription parses "ID[:LEN]". A missing length means the data
// length code of the identifier.
func ParseSubscription(s string) (sub Subscription, err error) {
	idStr, lenStr, hasLen := strings.Cut(s, ":")
	if sub.ID, err = ParseID(idStr); err != nil {
		return
	}
	if hasLen {
		if sub.Length, err = strconv.Atoi(lenStr); err != nil || sub.Length < 1 || sub.Length > lin.MaxDataLen {
			return sub, fmt.Errorf("%w: length %q", lin.ErrInvalidArgument, lenStr)
		}
	}
	return
}

// ParseEntry parses a schedule entry "ID[=DATA|?LEN][@SLOT]": DATA is
// the hex payload the host sends, LEN the length of a node response and
// SLOT a duration like 10ms.
func ParseEntry(s string) (entry Entry, err error) {
	if rest, slot, ok := strings.Cut(s, "@"); ok {
		if entry.Slot, err = time.ParseDuration(slot); err != nil || entry.Slot < 0 {
			return entry, fmt.Errorf("%w: slot %q", lin.ErrInvalidArgument, slot)
		}
		s = rest
	}
	idStr := s
	if i := strings.IndexAny(s, "=?"); i >= 0 {
		idStr = s[:i]
		switch arg := s[i+1:]; s[i] {
		case '=':
			if entry.Data, err = ParseData(arg); err != nil {
				return
			}
		case '?':
			if entry.Response, err = strconv.Atoi(arg); err != nil || entry.Response < 1 || entry.Response > lin.MaxDataLen {
				return entry, fmt.Errorf("%w: response length %q", lin.ErrInvalidArgument, arg)
			}
		}
	}
	if entry.ID, err = ParseID(idStr); err != nil {
		return
	}
	return entry, entry.Validate()
}

// ParseEntries parses a comma separated schedule table.
func ParseEntries(s string) ([]Entry, error) {
	var entries []Entry
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		entry, err := ParseEntry(item)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
