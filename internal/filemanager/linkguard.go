package filemanager

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/wouterc/sagsfiler/pkg/client"
)

// GenericErrorMessage is shown when a failed request carried no usable
// server message.
const GenericErrorMessage = "The operation failed. Please try again."

// LinkGuard intercepts delete and move of entries bound to a checklist item.
// Pre-flight it refuses entries whose listing row carries linked info;
// post-flight it converts the server's "linked" rejection into the same
// BlockedOperation so both paths end in one resolution dialog.
type LinkGuard struct {
	CaseID     string
	AppBaseURL string
}

// Check returns a BlockedOperation when entry is linked. The caller must not
// issue the mutation in that case.
func (g LinkGuard) Check(action Action, entry FileEntry) *BlockedOperation {
	if entry.LinkedInfo == nil {
		return nil
	}
	return &BlockedOperation{Action: action, Item: entry, Linked: *entry.LinkedInfo}
}

// Convert maps the outcome of a mutation call to a Result. A linked
// rejection becomes a blocked result; every other error becomes an error
// result with the server message when there is one.
func (g LinkGuard) Convert(action Action, entry FileEntry, err error) Result {
	if err == nil {
		return okResult()
	}
	if le, ok := client.AsLinked(err); ok {
		return blockedResult(&BlockedOperation{
			Action: action,
			Item:   entry,
			Linked: linkedFromProtocol(le.Details),
		})
	}
	return errorResult(err, ErrorMessage(err))
}

// ShowItemURL is the single resolution action for a block: a deep link to
// the checklist view filtered to the linked item.
func (g LinkGuard) ShowItemURL(b *BlockedOperation) string {
	base := strings.TrimSuffix(g.AppBaseURL, "/")
	q := url.Values{}
	q.Set("item", strconv.FormatInt(b.Linked.ID, 10))
	return fmt.Sprintf("%s/cases/%s/checklist?%s", base, url.PathEscape(g.CaseID), q.Encode())
}

// Describe renders a block for the blocked-info dialog.
func (b *BlockedOperation) Describe() string {
	verb := "deleted"
	if b.Action == ActionMove {
		verb = "moved"
	}
	return fmt.Sprintf("%q cannot be %s because it is linked to checklist item %s %s: %s",
		b.Item.Name, verb, b.Linked.GroupNumber, b.Linked.GroupName, b.Linked.Title)
}

// ErrorMessage picks the user-facing text for a failed request.
func ErrorMessage(err error) string {
	if ve, ok := AsValidation(err); ok {
		return ve.Error()
	}
	if ae, ok := client.AsAPIError(err); ok && ae.Message != "" {
		return ae.Message
	}
	return GenericErrorMessage
}
