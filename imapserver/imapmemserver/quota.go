package imapmemserver

import (
	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/imapserver"
)

var _ imapserver.SessionQuota = (*UserSession)(nil)

// quotaRoot is the name of the user's single quota root.
const quotaRoot = ""

// usageLocked reports the user's current STORAGE (in bytes) and MESSAGE
// usage across all mailboxes. The caller must hold u.mutex.
func (u *User) usageLocked() (storage, message int64) {
	for _, mbox := range u.mailboxes {
		mbox.mutex.Lock()
		storage += mbox.sizeLocked()
		message += int64(len(mbox.l))
		mbox.mutex.Unlock()
	}
	return storage, message
}

// checkQuota returns an OVERQUOTA error if appending size more bytes would
// exceed the user's storage limit.
func (u *User) checkQuota(size int64) error {
	u.mutex.Lock()
	limit, ok := u.quotaLimits[imap.QuotaResourceStorage]
	var storage int64
	if ok {
		storage, _ = u.usageLocked()
	}
	u.mutex.Unlock()

	if ok && storage+size > limit*1024 {
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeOverQuota,
			Text: "quota exceeded",
		}
	}
	return nil
}

// GetQuota returns the user's quota usage and limits for root. The only
// valid root is the empty string, naming the user's single quota root.
func (u *User) GetQuota(root string) (*imapserver.QuotaData, error) {
	if root != quotaRoot {
		return nil, nil
	}

	u.mutex.Lock()
	storage, message := u.usageLocked()
	data := u.quotaDataLocked(storage, message)
	u.mutex.Unlock()

	return data, nil
}

// GetQuotaRoot returns the quota root governing mailbox.
func (u *User) GetQuotaRoot(mailbox string) ([]imapserver.QuotaData, error) {
	if _, err := u.mailbox(mailbox); err != nil {
		return nil, err
	}

	u.mutex.Lock()
	storage, message := u.usageLocked()
	data := u.quotaDataLocked(storage, message)
	u.mutex.Unlock()

	return []imapserver.QuotaData{*data}, nil
}

// SetQuota sets the user's resource limits for root. The only valid root
// is the empty string.
func (u *User) SetQuota(root string, limits map[imap.QuotaResourceType]int64) error {
	if root != quotaRoot {
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeNonExistent,
			Text: "no such quota root",
		}
	}

	u.mutex.Lock()
	defer u.mutex.Unlock()
	u.quotaLimits = limits
	return nil
}

// quotaDataLocked builds the QuotaData for the user's single quota root.
// The caller must hold u.mutex.
func (u *User) quotaDataLocked(storage, message int64) *imapserver.QuotaData {
	data := &imapserver.QuotaData{Root: quotaRoot}
	for _, typ := range []imap.QuotaResourceType{imap.QuotaResourceStorage, imap.QuotaResourceMessage} {
		limit, ok := u.quotaLimits[typ]
		if !ok {
			continue
		}
		usage := message
		if typ == imap.QuotaResourceStorage {
			usage = storage / 1024
		}
		data.Resources = append(data.Resources, imapserver.QuotaResource{
			Type:  typ,
			Usage: usage,
			Limit: limit,
		})
	}
	return data
}
