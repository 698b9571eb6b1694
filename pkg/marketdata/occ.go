package marketdata

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gregtusar/synthlong/pkg/models"
)

// OCCSymbol is the decoded form of an OCC option symbol such as
// AAPL250620C00100000.
type OCCSymbol struct {
	Root   string
	Expiry time.Time
	Type   models.OptionType
	Strike float64
}

// ParseOCCSymbol decodes root, expiry, side and strike (in thousandths) from
// an OCC option symbol. Padding spaces in the root are tolerated.
func ParseOCCSymbol(symbol string) (OCCSymbol, error) {
	s := strings.ReplaceAll(strings.TrimSpace(symbol), " ", "")
	if len(s) < 16 {
		return OCCSymbol{}, fmt.Errorf("occ symbol %q: too short", symbol)
	}

	tail := s[len(s)-15:]
	root := s[:len(s)-15]
	if root == "" {
		return OCCSymbol{}, fmt.Errorf("occ symbol %q: missing root", symbol)
	}

	expiry, err := time.ParseInLocation("060102", tail[:6], time.UTC)
	if err != nil {
		return OCCSymbol{}, fmt.Errorf("occ symbol %q: bad expiry: %w", symbol, err)
	}

	var optType models.OptionType
	switch tail[6] {
	case 'C':
		optType = models.OptionTypeCall
	case 'P':
		optType = models.OptionTypePut
	default:
		return OCCSymbol{}, fmt.Errorf("occ symbol %q: bad side %q", symbol, tail[6])
	}

	thousandths, err := strconv.ParseUint(tail[7:], 10, 64)
	if err != nil || thousandths == 0 {
		return OCCSymbol{}, fmt.Errorf("occ symbol %q: bad strike", symbol)
	}

	return OCCSymbol{
		Root:   root,
		Expiry: expiry,
		Type:   optType,
		Strike: float64(thousandths) / 1000,
	}, nil
}
