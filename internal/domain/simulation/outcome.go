package simulation

// Outcome is the tagged result of an engine call: exactly one of Result and
// Failure is set. Build it with Ok or Err.
type Outcome struct {
	Result  *Result
	Failure *Failure
}

// Ok wraps a successful engine result.
func Ok(r *Result) Outcome {
	return Outcome{Result: r}
}

// Err wraps a classified failure.
func Err(kind ErrorKind, message string, details map[string]any) Outcome {
	return Outcome{Failure: &Failure{Kind: kind, Message: message, Details: details}}
}

// IsOK reports whether the outcome carries a result.
func (o Outcome) IsOK() bool {
	return o.Failure == nil && o.Result != nil
}
