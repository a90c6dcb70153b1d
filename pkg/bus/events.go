package bus

// From carries the sender id and is embedded in every event.
type From struct {
	ID string
}

// Sender implements Event.
func (f From) Sender() string { return f.ID }

// LinkRequested asks the other panes to pick a link target for Source.
// AutoAdvance asks the responder to move on to the next unit after linking.
type LinkRequested struct {
	From
	Source      string
	AutoAdvance bool
}

// LinkResponse names the entity picked in answer to a link request.
type LinkResponse struct {
	From
	Target string
}

// LinkCompleted reports a stored link. OldTarget is the entity the source
// was linked to before, if any.
type LinkCompleted struct {
	From
	Source    string
	Target    string
	OldTarget string
}

// LinkRemoved reports that Source is no longer linked to Target.
type LinkRemoved struct {
	From
	Source string
	Target string
}

// LinkAborted reports a link request that was refused.
type LinkAborted struct {
	From
	Source string
	Target string
}

// SelectionChanged carries the global ids now selected in the sender.
type SelectionChanged struct {
	From
	IDs []string
}

// SyllableEntered asks panes to highlight the segments of IDs.
type SyllableEntered struct {
	From
	IDs []string
}

// SyllableLeft clears the highlight set by SyllableEntered.
type SyllableLeft struct {
	From
	IDs []string
}

// Synchronize scrolls other panes to AnchorSegID, VisFraction of the way
// down its height.
type Synchronize struct {
	From
	AnchorSegID string
	VisFraction float64
}

// AutoLinkOrdRequest starts linking numbered segments of BaselineID in
// order. Mode is the number of segments selected when requested.
type AutoLinkOrdRequest struct {
	From
	BaselineID int
	Mode       int
}

// AutoLinkOrdReturn answers an AutoLinkOrdRequest with the edition and the
// optional syllable ids to link to.
type AutoLinkOrdReturn struct {
	From
	BaselineID int
	EditionID  int
	SclIDs     []int
}

// AutoLinkOrdAbort cancels an AutoLinkOrdRequest.
type AutoLinkOrdAbort struct {
	From
	BaselineID int
}

// AutoLinkOrdComplete reports the end of an ordered linking run.
type AutoLinkOrdComplete struct {
	From
	BaselineID int
	EditionID  int
}

// AutoLinkAdvance asks the link source pane to move to its next unit.
type AutoLinkAdvance struct {
	From
	Source string
	Target string
}

// EntitiesChanged reports global ids merged into the entity cache.
type EntitiesChanged struct {
	From
	GIDs []string
}

// Name returns a short name for ev, used in logs.
func Name(ev Event) string {
	switch ev.(type) {
	case LinkRequested:
		return "linkRequest"
	case LinkResponse:
		return "linkResponse"
	case LinkCompleted:
		return "linkComplete"
	case LinkRemoved:
		return "linkRemoved"
	case LinkAborted:
		return "linkAbort"
	case SelectionChanged:
		return "updateselection"
	case SyllableEntered:
		return "enterSyllable"
	case SyllableLeft:
		return "leaveSyllable"
	case Synchronize:
		return "synchronize"
	case AutoLinkOrdRequest:
		return "autoLinkOrdRequest"
	case AutoLinkOrdReturn:
		return "autoLinkOrdReturn"
	case AutoLinkOrdAbort:
		return "autoLinkOrdAbort"
	case AutoLinkOrdComplete:
		return "autoLinkOrdComplete"
	case AutoLinkAdvance:
		return "autoLinkAdvance"
	case EntitiesChanged:
		return "entitiesChanged"
	default:
		return "unknown"
	}
}
