package schema

// OutcomeKind tags the variant held by a ChatOutcome.
type OutcomeKind int

const (
	// OutcomeSuccess carries a reply and an optional image URL.
	OutcomeSuccess OutcomeKind = iota + 1
	// OutcomeAuthExpired reports the service rejected the credential.
	OutcomeAuthExpired
	// OutcomeServerError reports a rejected request with a detail message.
	OutcomeServerError
	// OutcomeNetworkFailure reports a transport-level failure.
	OutcomeNetworkFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeAuthExpired:
		return "auth_expired"
	case OutcomeServerError:
		return "server_error"
	case OutcomeNetworkFailure:
		return "network_failure"
	default:
		return "unknown"
	}
}

// ChatOutcome is the typed result of one chat request.
type ChatOutcome struct {
	Kind      OutcomeKind
	ReplyText string
	// ImageURL is empty when the service did not produce an image.
	ImageURL string
	Detail   string
	Status   int
}

// SuccessOutcome builds a Success outcome.
func SuccessOutcome(reply, imageURL string) ChatOutcome {
	return ChatOutcome{Kind: OutcomeSuccess, ReplyText: reply, ImageURL: imageURL}
}

// AuthExpiredOutcome builds an AuthExpired outcome.
func AuthExpiredOutcome() ChatOutcome {
	return ChatOutcome{Kind: OutcomeAuthExpired, Status: 401}
}

// ServerErrorOutcome builds a ServerError outcome.
func ServerErrorOutcome(status int, detail string) ChatOutcome {
	return ChatOutcome{Kind: OutcomeServerError, Status: status, Detail: detail}
}

// NetworkFailureOutcome builds a NetworkFailure outcome.
func NetworkFailureOutcome(detail string) ChatOutcome {
	return ChatOutcome{Kind: OutcomeNetworkFailure, Detail: detail}
}

// ImageResultKind tags the variant held by an ImageResult.
type ImageResultKind int

const (
	// ImagePending marks a placeholder that has not been resolved.
	ImagePending ImageResultKind = iota
	// ImageReady carries displayable bytes.
	ImageReady
	// ImageTimedOut reports the fetch deadline fired first.
	ImageTimedOut
	// ImageFailed reports a non-2xx status, transport or decode failure.
	ImageFailed
)

func (k ImageResultKind) String() string {
	switch k {
	case ImagePending:
		return "pending"
	case ImageReady:
		return "ready"
	case ImageTimedOut:
		return "timed_out"
	case ImageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ImageResult is the outcome of one image fetch.
type ImageResult struct {
	Kind      ImageResultKind
	SourceURL string
	Data      []byte
	MIME      string
	Extension string
	Width     int
	Height    int
	Reason    string
}

// Failed reports whether the result is a terminal failure.
func (r ImageResult) Failed() bool {
	return r.Kind == ImageTimedOut || r.Kind == ImageFailed
}

// SubmitResult describes an accepted submission.
type SubmitResult struct {
	ID      SubmissionID
	Message OutgoingMessage
	Outcome ChatOutcome
}
