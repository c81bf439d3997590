package broker

import "fmt"

// NoticeKind is one of the error/ack kinds a NOTICE can carry.
type NoticeKind int

const (
	NoticeBlocked NoticeKind = iota
	NoticeDuplicate
	NoticeSaved
	NoticeError
	NoticeInvalid
	NoticeOversize
	NoticeParse
)

// Notice is what the Writer (or Connection Handler, for parse/oversize)
// sends back to a submitter. Message is the human-readable NOTICE text;
// EventIDHex is empty for notices not tied to a specific event (parse,
// oversize).
type Notice struct {
	Kind       NoticeKind
	EventIDHex string
	Message    string
}

func blockedNotice(idHex, reason string) Notice {
	return Notice{Kind: NoticeBlocked, EventIDHex: idHex, Message: reason}
}

func duplicateNotice(idHex string) Notice {
	return Notice{Kind: NoticeDuplicate, EventIDHex: idHex, Message: "duplicate: have this event"}
}

func savedNotice(idHex string) Notice {
	return Notice{Kind: NoticeSaved, EventIDHex: idHex, Message: "saved"}
}

func errorNotice(idHex, reason string) Notice {
	return Notice{Kind: NoticeError, EventIDHex: idHex, Message: fmt.Sprintf("error: %s", reason)}
}

func invalidNotice(idHex, reason string) Notice {
	return Notice{Kind: NoticeInvalid, EventIDHex: idHex, Message: fmt.Sprintf("invalid: %s", reason)}
}
