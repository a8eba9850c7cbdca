package service

import (
	"time"

	"github.com/cliniq-dev/cliniq/shared/domain"
)

type loginOutcome int

const (
	outcomeInvalidCredentials loginOutcome = iota
	outcomeDeactivated
	outcomeLocked
	outcomeOtpRequired
	outcomeSuccess
)

// loginDecision is the terminal verdict for one password check, plus the
// counter state the caller must persist. Computing it here keeps the lockout
// rules in one pure function with no I/O.
type loginDecision struct {
	Outcome     loginOutcome
	FailedCount int           // value to persist
	LockUntil   *time.Time    // value to persist (nil clears the lock)
	RetryAfter  time.Duration // only set for outcomeLocked
}

// decideLogin evaluates one login attempt for an already-fetched user.
// passwordOK is only consulted for active, unlocked accounts, so callers may
// skip the hash comparison entirely in the other branches.
//
// The order is deliberate: deactivation and lock are checked before the
// password so a locked account never reveals password correctness.
func decideLogin(user domain.User, passwordOK, otpSupplied bool, now time.Time, maxFailures int, lockWindow time.Duration) loginDecision {
	if !user.IsActive {
		return loginDecision{Outcome: outcomeDeactivated}
	}

	if user.Locked(now) {
		return loginDecision{
			Outcome:    outcomeLocked,
			RetryAfter: user.LockUntil.Sub(now),
		}
	}

	if !passwordOK {
		failed := user.FailedLoginCount + 1
		d := loginDecision{Outcome: outcomeInvalidCredentials, FailedCount: failed}
		if failed >= maxFailures {
			lockUntil := now.Add(lockWindow)
			d.LockUntil = &lockUntil
		}
		return d
	}

	// Correct password resets the counter even when an OTP round-trip is
	// still ahead; the second factor has its own replay protection.
	d := loginDecision{Outcome: outcomeSuccess, FailedCount: 0, LockUntil: nil}
	if user.TwoFactorEnabled && !otpSupplied {
		d.Outcome = outcomeOtpRequired
	}
	return d
}
