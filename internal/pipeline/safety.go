package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/logging"
)

// UnsafePromptWarning is returned in place of an answer when a prompt
// fails every configured SafetyChecker.
const UnsafePromptWarning = "It looks as if your question may be unsafe. " +
	"This may be due to issues relating to toxicity, hate, identity, violence, " +
	"physical tones, sexual tones, profanity, or biased questions. " +
	"Please try to reformat your question."

// UnsafeOutputWarning is returned in place of an answer when a model's
// response fails every configured SafetyChecker.
const UnsafeOutputWarning = "The response to your question may be unsafe. " +
	"This may be due to issues relating to toxicity, hate, identity, violence, " +
	"physical tones, sexual tones, profanity, or biased questions. " +
	"There are two ways to solve this: generate the response, or reformat " +
	"your question so that it does not prompt an unsafe response."

// SafetyChecker inspects a piece of text and reports whether it is safe,
// plus a diagnostic report for logging. No concrete checker ships with
// this module (the original delegates to external classifier models,
// e.g. Llama Guard, out of scope here); CheckSafety is a no-op with zero
// checkers configured.
type SafetyChecker func(text string) (safe bool, report string)

// CheckSafety runs every checker against text and reports whether all of
// them passed. textType ("prompt" or "output") only affects logging.
func CheckSafety(ctx context.Context, text string, checkers []SafetyChecker, textType string, logger *logging.Logger) bool {
	if logger == nil {
		logger = logging.Nop()
	}
	allSafe := true
	for _, check := range checkers {
		safe, report := check(text)
		if !safe {
			allSafe = false
			logger.Warn(ctx, "text deemed unsafe", zap.String("text_type", textType), zap.String("report", report))
		}
	}
	return allSafe
}
