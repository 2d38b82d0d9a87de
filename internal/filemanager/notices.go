package filemanager

// NoticeLevel is the severity of a transient notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeSuccess:
		return "success"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a transient, non-modal message (a toast).
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Desktop export notice shown when the host cannot carry a download descriptor.
const noticeDesktopUnsupported = "Dragging files to the desktop is not supported in this browser."
