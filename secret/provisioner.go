package secret

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// MinLength is the shortest password the service accepts.
const MinLength = 8

// Prompt texts.
const (
	promptSecret  = "Insert a password for firegex: "
	promptConfirm = "Confirm the password: "
)

// ErrTooShort is returned for a non-interactive password under MinLength.
var ErrTooShort = fmt.Errorf("password has to be at least %d characters long", MinLength)

// Mode selects where the password comes from.
type Mode int

const (
	// ModePrompt asks the operator on the terminal.
	ModePrompt Mode = iota
	// ModeProvided uses a password given on the command line.
	ModeProvided
	// ModeOnWeb leaves the password to the web interface after deployment.
	ModeOnWeb
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModePrompt:
		return "prompt"
	case ModeProvided:
		return "provided"
	case ModeOnWeb:
		return "web"
	default:
		return "unknown"
	}
}

// Source describes how to obtain the password.
type Source struct {
	Mode  Mode
	Value string // only for ModeProvided
}

// Prompter reads a line from the operator without echoing it.
type Prompter interface {
	ReadSecret(ctx context.Context, prompt string) (string, error)
}

// Provisioner collects the startup password.
type Provisioner struct {
	prompter Prompter
	out      io.Writer
}

// NewProvisioner creates a Provisioner. Validation messages go to out.
func NewProvisioner(p Prompter, out io.Writer) *Provisioner {
	return &Provisioner{prompter: p, out: out}
}

// Provision returns the hex encoded password to inject into the
// deployment, or "" when none should be set: the data volume already holds
// one, or the operator chose to set it on the web interface.
func (p *Provisioner) Provision(ctx context.Context, src Source, volumePresent bool) (string, error) {
	if volumePresent || src.Mode == ModeOnWeb {
		return "", nil
	}

	var (
		psw string
		err error
	)
	switch src.Mode {
	case ModeProvided:
		if !longEnough(src.Value) {
			return "", ErrTooShort
		}
		psw = src.Value
	default:
		psw, err = p.Collect(ctx)
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString([]byte(psw)), nil
}

type state int

const (
	stateCollecting state = iota
	stateConfirming
	stateAccepted
)

// Collect asks for a password and its confirmation until both match.
// A short password is asked again; a mismatched confirmation starts over
// from the first prompt.
func (p *Provisioner) Collect(ctx context.Context) (string, error) {
	var candidate string
	st := stateCollecting
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		switch st {
		case stateCollecting:
			s, err := p.read(ctx, promptSecret)
			if err != nil {
				return "", err
			}
			if !longEnough(s) {
				fmt.Fprintf(p.out, "The password has to be at least %d char long\n", MinLength)
				continue
			}
			candidate, st = s, stateConfirming

		case stateConfirming:
			s, err := p.read(ctx, promptConfirm)
			if err != nil {
				return "", err
			}
			if s != candidate {
				fmt.Fprintln(p.out, "Passwords don't match!")
				candidate, st = "", stateCollecting
				continue
			}
			st = stateAccepted

		case stateAccepted:
			return candidate, nil
		}
	}
}

func (p *Provisioner) read(ctx context.Context, prompt string) (string, error) {
	s, err := p.prompter.ReadSecret(ctx, prompt)
	if errors.Is(err, io.EOF) {
		return "", io.ErrUnexpectedEOF
	}
	return s, err
}

func longEnough(s string) bool {
	return utf8.RuneCountInString(s) >= MinLength
}
