package vault

import (
	"fmt"

	"github.com/holiman/uint256"
)

// CheckInvariants verifies that the vault-wide early-exited total equals the
// sum over registered pairs and that the pair index has no dangling entries.
func (e *Engine) CheckInvariants() error {
	s, err := e.loadSettings()
	if err != nil {
		return err
	}
	keys, err := e.pairIndex()
	if err != nil {
		return err
	}
	sum := new(uint256.Int)
	for _, key := range keys {
		p, err := e.loadPair(key)
		if err != nil {
			return err
		}
		if p == nil || !p.Allowed {
			return fmt.Errorf("%w: index references missing pair %s", ErrInvariantViolated, key.Hex())
		}
		var overflow bool
		if sum, overflow = new(uint256.Int).AddOverflow(sum, p.EarlyExited); overflow {
			return fmt.Errorf("%w: early-exited sum overflows", ErrInvariantViolated)
		}
	}
	if !sum.Eq(s.TotalEarlyExited) {
		return fmt.Errorf("%w: pairs sum to %s, total is %s", ErrInvariantViolated, sum.Dec(), s.TotalEarlyExited.Dec())
	}
	return nil
}
