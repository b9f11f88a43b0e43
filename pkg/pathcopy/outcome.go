package pathcopy

// Result classifies what happened to one file.
type Result int

const (
	// Skipped means nothing was done.
	Skipped Result = iota
	// Copied means the file was copied (and verified, if requested).
	Copied
	// CopiedVerifyFailed means the file was copied but the checksums differ.
	CopiedVerifyFailed
	// Warning means a recoverable problem stopped the copy.
	Warning
	// Error means the copy failed.
	Error
)

// Outcome is the result of Copier.Copy. Reason explains Warning, Error and
// CopiedVerifyFailed results.
type Outcome struct {
	Result Result
	Reason string
}

// IsCopied reports whether the destination now holds the source's bytes.
func (o Outcome) IsCopied() bool {
	return o.Result == Copied || o.Result == CopiedVerifyFailed
}

func copied() Outcome { return Outcome{Result: Copied} }
func warning(reason string) Outcome { return Outcome{Result: Warning, Reason: reason} }
func failure(reason string) Outcome { return Outcome{Result: Error, Reason: reason} }
func verifyFailed(reason string) Outcome {
	return Outcome{Result: CopiedVerifyFailed, Reason: reason}
}
