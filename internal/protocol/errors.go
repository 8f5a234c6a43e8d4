package protocol

// ErrorKind is the tag carried in the Name of an error reply.
type ErrorKind string

const (
	ErrKindModelAlreadyLoaded ErrorKind = "modelAlreadyLoaded"
	ErrKindTokenizerLoad      ErrorKind = "tokenizerLoadError"
	ErrKindModelLoad          ErrorKind = "modelLoadError"
	ErrKindFetchModel         ErrorKind = "fetchModelError"
	ErrKindSaveModel          ErrorKind = "saveModelError"
	ErrKindModelNotLoaded     ErrorKind = "modelNotLoaded"
	ErrKindTokenizerNotLoaded ErrorKind = "tokenizerNotLoaded"
	ErrKindForward            ErrorKind = "forwardError"
	ErrKindSample             ErrorKind = "sampleError"
	ErrKindEncode             ErrorKind = "encodeError"
	ErrKindDecode             ErrorKind = "decodeError"
	ErrKindUnknownAction      ErrorKind = "unknownAction"
	ErrKindInvalidRequest     ErrorKind = "invalidRequest"

	// Raised by the transport or the client rather than by a handler.
	ErrKindChannelFailure ErrorKind = "channelFailure"
	ErrKindDisposed       ErrorKind = "disposed"
)

// Error is a failed request. Two errors match under errors.Is when their
// kinds are equal, so callers compare against the sentinels below.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Errorf returns an *Error of the given kind.
func Errorf(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	ErrModelAlreadyLoaded = &Error{Kind: ErrKindModelAlreadyLoaded}
	ErrTokenizerLoad      = &Error{Kind: ErrKindTokenizerLoad}
	ErrModelLoad          = &Error{Kind: ErrKindModelLoad}
	ErrFetchModel         = &Error{Kind: ErrKindFetchModel}
	ErrSaveModel          = &Error{Kind: ErrKindSaveModel}
	ErrModelNotLoaded     = &Error{Kind: ErrKindModelNotLoaded}
	ErrTokenizerNotLoaded = &Error{Kind: ErrKindTokenizerNotLoaded}
	ErrForward            = &Error{Kind: ErrKindForward}
	ErrSample             = &Error{Kind: ErrKindSample}
	ErrEncode             = &Error{Kind: ErrKindEncode}
	ErrDecode             = &Error{Kind: ErrKindDecode}
	ErrUnknownAction      = &Error{Kind: ErrKindUnknownAction}
	ErrInvalidRequest     = &Error{Kind: ErrKindInvalidRequest}
	ErrChannelFailure     = &Error{Kind: ErrKindChannelFailure}
	ErrDisposed           = &Error{Kind: ErrKindDisposed}
)
