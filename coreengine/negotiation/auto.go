package negotiation

import (
	"context"
	"time"
)

// Stepper advances a negotiation by one round.
type Stepper interface {
	EvaluateRound(ctx context.Context) (*RoundResult, error)
}

// AutoNegotiate drives s round by round, waiting interval between the end of
// one round and the start of the next, so rounds never overlap.
//
// It stops when a round converges, when maxRounds rounds have run (0 = no
// cap), when onRound returns an error, or when ctx is done. It returns the
// last completed round, which is nil if none ran.
func AutoNegotiate(ctx context.Context, s Stepper, interval time.Duration, maxRounds int, onRound func(*RoundResult) error) (*RoundResult, error) {
	var last *RoundResult

	for ran := 0; maxRounds <= 0 || ran < maxRounds; ran++ {
		if ran > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return last, ctx.Err()
			case <-timer.C:
			}
		}

		result, err := s.EvaluateRound(ctx)
		if err != nil {
			return last, err
		}
		last = result

		if onRound != nil {
			if err := onRound(result); err != nil {
				return last, err
			}
		}
		if result.Converged {
			return last, nil
		}
	}
	return last, nil
}
