package internal_test

import (
	"bufio"
	"strings"
	"testing"
	"time"

	"github.com/coldwire/imapd/internal"
	"github.com/coldwire/imapd/internal/imapwire"
)

func TestDecodeSearchDate(t *testing.T) {
	tests := []struct {
		s       string
		want    time.Time
		wantErr bool
	}{
		{s: `"1-Feb-1994"`, want: time.Date(1994, time.February, 1, 0, 0, 0, 0, time.UTC)},
		{s: `1-Feb-1994`, want: time.Date(1994, time.February, 1, 0, 0, 0, 0, time.UTC)},
		{s: `"not a date"`, wantErr: true},
	}

	for _, test := range tests {
		dec := imapwire.NewDecoder(bufio.NewReader(strings.NewReader(test.s)), imapwire.ConnSideServer)
		got, err := internal.DecodeSearchDate(dec)
		if test.wantErr {
			if err == nil {
				t.Errorf("DecodeSearchDate(%q) succeeded, want error", test.s)
			}
			continue
		}
		if err != nil {
			t.Errorf("DecodeSearchDate(%q) failed: %v", test.s, err)
			continue
		}
		if !got.Equal(test.want) {
			t.Errorf("DecodeSearchDate(%q) = %v, want %v", test.s, got, test.want)
		}
	}
}
