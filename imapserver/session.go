// Package imapserver implements an IMAP server.
package imapserver

import (
	"fmt"

	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/internal/imapwire"
	"github.com/emersion/go-sasl"
)

// errAuthFailed is the IMAP error returned for a failed authentication.
var errAuthFailed = &imap.Error{
	Type: imap.StatusResponseTypeNo,
	Code: imap.ResponseCodeAuthenticationFailed,
	Text: "authentication failed",
}

// ErrAuthFailed can be returned by Session.Login to indicate invalid
// credentials.
var ErrAuthFailed = errAuthFailed

// GreetingData holds data associated with the IMAP greeting.
type GreetingData struct {
	PreAuth bool
}

// NumKind describes how a number should be interpreted: either as a
// sequence number or as a UID.
type NumKind int

const (
	NumKindSeq = NumKind(imapwire.NumKindSeq)
	NumKindUID = NumKind(imapwire.NumKindUID)
)

// String implements fmt.Stringer.
func (kind NumKind) String() string {
	switch kind {
	case NumKindSeq:
		return "seq"
	case NumKindUID:
		return "uid"
	default:
		panic(fmt.Errorf("imapserver: unknown NumKind %d", kind))
	}
}

// wire returns the imapwire type corresponding to kind.
func (kind NumKind) wire() imapwire.NumKind {
	return imapwire.NumKind(kind)
}

// Session is an IMAP session backend.
type Session interface {
	Close() error

	// Not authenticated state
	Login(username, password string) error

	// Authenticated state
	Select(mailbox string, options *imap.SelectOptions) (*imap.SelectData, error)
	Create(mailbox string, options *imap.CreateOptions) error
	Delete(mailbox string) error
	Rename(mailbox, newName string) error
	Subscribe(mailbox string) error
	Unsubscribe(mailbox string) error
	List(w *ListWriter, ref string, patterns []string, options *imap.ListOptions) error
	Status(mailbox string, options *imap.StatusOptions) (*imap.StatusData, error)
	Append(mailbox string, r imap.LiteralReader, options *imap.AppendOptions) (*imap.AppendData, error)
	Poll(w *UpdateWriter, allowExpunge bool) error
	Idle(w *UpdateWriter, stop <-chan struct{}) error

	// Selected state
	Unselect() error
	Expunge(w *ExpungeWriter, uids *imap.UIDSet) error
	Search(kind NumKind, criteria *imap.SearchCriteria, options *imap.SearchOptions) (*imap.SearchData, error)
	Fetch(w *FetchWriter, numSet imap.NumSet, options *imap.FetchOptions) error
	Store(w *FetchWriter, numSet imap.NumSet, flags *imap.StoreFlags, options *imap.StoreOptions) error
	Copy(numSet imap.NumSet, dest string) (*imap.CopyData, error)
}

// SessionNamespace is an IMAP session that supports NAMESPACE.
type SessionNamespace interface {
	Session

	// Authenticated state
	Namespace() (*imap.NamespaceData, error)
}

// SessionMove is an IMAP session that supports MOVE.
type SessionMove interface {
	Session

	// Selected state
	Move(w *MoveWriter, numSet imap.NumSet, dest string) error
}

// SessionIMAP4rev2 is an IMAP session that supports IMAP4rev2.
type SessionIMAP4rev2 interface {
	Session
	SessionNamespace
	SessionMove
}

// SessionSASL is an IMAP session that supports its own SASL authentication
// mechanisms.
type SessionSASL interface {
	Session
	AuthenticateMechanisms() []string
	Authenticate(mech string) (sasl.Server, error)
}

// SessionUnauthenticate is an IMAP session that supports UNAUTHENTICATE.
type SessionUnauthenticate interface {
	Session

	// Authenticated state
	Unauthenticate() error
}

// SessionACL is an IMAP session that supports the ACL extension, RFC 4314.
type SessionACL interface {
	Session

	// Authenticated state
	GetACL(mailbox string) (map[imap.RightsIdentifier]imap.RightSet, error)
	SetACL(mailbox string, identifier imap.RightsIdentifier, mod imap.RightModification, rs imap.RightSet) error
	DeleteACL(mailbox string, identifier imap.RightsIdentifier) error
	ListRights(mailbox string, identifier imap.RightsIdentifier) (imap.RightSet, []imap.RightSet, error)
	MyRights(mailbox string) (imap.RightSet, error)
}

// SessionQuota is an IMAP session that supports the QUOTA extension, RFC 9208.
type SessionQuota interface {
	Session

	// Authenticated state
	GetQuota(root string) (*QuotaData, error)
	GetQuotaRoot(mailbox string) ([]QuotaData, error)
	SetQuota(root string, limits map[imap.QuotaResourceType]int64) error
}

// QuotaData holds the resource usage and limits for a quota root.
type QuotaData struct {
	Root      string
	Resources []QuotaResource
}

// QuotaResource holds the usage and limit for a single quota resource.
type QuotaResource struct {
	Type  imap.QuotaResourceType
	Usage int64
	Limit int64
}

// SessionThread is an IMAP session that supports the THREAD extension,
// RFC 5256.
type SessionThread interface {
	Session

	// Selected state
	Thread(algorithm imap.ThreadAlgorithm, criteria *imap.SearchCriteria) ([]ThreadNode, error)
}

// ThreadNode is a node in a THREAD response tree.
type ThreadNode struct {
	UID      imap.UID
	Children []ThreadNode
}
