package amapi

import (
	"strings"

	"github.com/geni-nsf/am-contract-tests/fault"
)

// Result codes from the version 2 response envelope. Version 1 aggregates
// have no code table and report failures as XML-RPC faults with free-form
// text, which classifyMessage handles.
const (
	codeSuccess       = 0
	codeBadArgs       = 1
	codeError         = 2
	codeForbidden     = 3
	codeBadVersion    = 4
	codeServerError   = 5
	codeTooBig        = 6
	codeRefused       = 7
	codeTimedOut      = 8
	codeDBError       = 9
	codeRPCError      = 10
	codeUnavailable   = 11
	codeSearchFailed  = 12
	codeUnsupported   = 13
	codeBusy          = 14
	codeExpired       = 15
	codeInProgress    = 16
	codeAlreadyExists = 17
)

func kindForCode(code int) fault.Kind {
	switch code {
	case codeForbidden:
		return fault.KindAuthorization
	case codeBadVersion, codeUnsupported:
		return fault.KindUnsupported
	case codeRefused, codeTimedOut, codeBusy, codeInProgress:
		return fault.KindBusy
	case codeRPCError:
		return fault.KindProtocol
	case codeUnavailable:
		return fault.KindUnavailable
	case codeSearchFailed:
		return fault.KindNoSuchSliver
	case codeExpired:
		return fault.KindExpired
	case codeAlreadyExists:
		return fault.KindAlreadyExists
	default:
		return fault.KindOperation
	}
}

// messagePatterns refines a failure's kind from the text the aggregate
// returned. The order matters: earlier rows are more specific. The phrases
// cover the reference aggregate and the common production ones; anything
// unmatched keeps the kind the code gave it.
var messagePatterns = []struct {
	kind    fault.Kind
	phrases []string
}{
	{fault.KindAlreadyExists, []string{
		"already exists", "already a sliver", "already registered",
	}},
	{fault.KindNoSuchSliver, []string{
		"no such sliver", "no sliver", "sliver not found",
		"no such slice", "unknown slice", "slice not found", "no slice",
	}},
	{fault.KindExpired, []string{"expired"}},
	{fault.KindWrongRole, []string{
		"must be request", "not a request rspec", "expected a request",
		"wrong rspec type", "manifest given where request",
	}},
	{fault.KindEmptyDocument, []string{
		"empty rspec", "rspec is empty", "rspec was empty", "empty descriptor",
	}},
	{fault.KindMalformedDocument, []string{
		"malformed", "not well-formed", "not well formed",
		"start tag expected", "premature end of data", "syntax error",
		"failed to parse", "could not parse", "unparseable",
	}},
	{fault.KindAuthorization, []string{
		"forbidden", "not authorized", "unauthorized",
		"permission denied", "access denied", "signature",
		"not trusted", "untrusted", "invalid credential",
		"credential is invalid", "verification failed", "failed to verify",
	}},
	{fault.KindUnsupported, []string{"not implemented", "unsupported", "does not support"}},
	{fault.KindBusy, []string{"busy", "try again", "in progress"}},
	{fault.KindUnavailable, []string{"unavailable", "shut down"}},
}

func classifyMessage(message string) fault.Kind {
	lower := strings.ToLower(message)
	for _, row := range messagePatterns {
		for _, phrase := range row.phrases {
			if strings.Contains(lower, phrase) {
				return row.kind
			}
		}
	}
	return ""
}

// classifyEnvelope builds the fault for a non-success envelope. The message
// text wins over the code when it names something more specific, because
// several aggregates report every failure as geni_code 2.
func classifyEnvelope(op string, code int, output string) *fault.Fault {
	kind := kindForCode(code)
	if sniffed := classifyMessage(output); sniffed != "" {
		kind = sniffed
	} else if code == codeBadArgs && op == "CreateSliver" {
		kind = fault.KindBadDescriptor
	}
	message := output
	if message == "" {
		message = op + " failed"
	} else {
		message = op + ": " + message
	}
	return fault.New(kind, message).WithCode(code)
}

// classifyFaultString builds the fault for a version 1 XML-RPC fault, which
// carries only free-form text.
func classifyFaultString(op string, faultString string) *fault.Fault {
	kind := classifyMessage(faultString)
	if kind == "" {
		kind = fault.KindOperation
	}
	return fault.Newf(kind, "%s: %s", op, faultString)
}
