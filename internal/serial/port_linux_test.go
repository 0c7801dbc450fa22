//go:build linux

package serial

import (
	"testing"

	"github.com/danmuck/hcilink/internal/testutil/testlog"
)

func TestEverySupportedBaudHasFlag(t *testing.T) {
	testlog.Start(t)
	if len(baudFlags) != len(SupportedBauds) {
		t.Fatalf("flags=%d supported=%d", len(baudFlags), len(SupportedBauds))
	}
	for _, b := range SupportedBauds {
		if _, ok := baudFlags[b]; !ok {
			t.Fatalf("missing flag for %d", b)
		}
	}
}
