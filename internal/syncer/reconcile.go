package syncer

import "docvault/internal/models"

// ActionKind is what a run does for one logical path.
type ActionKind string

const (
	ActionNone ActionKind = "none"
	// ActionUpload copies the local file up and removes any remote marker.
	ActionUpload ActionKind = "upload"
	// ActionDownload copies the remote file down and removes any local marker.
	ActionDownload ActionKind = "download"
	// ActionPushDeletion removes the remote file, if any, and uploads the
	// local marker.
	ActionPushDeletion ActionKind = "push-deletion"
	// ActionApplyDeletion removes the local file because the remote marker
	// is at least as new.
	ActionApplyDeletion ActionKind = "apply-deletion"
	// ActionDropMarker removes a local marker the remote already has.
	ActionDropMarker ActionKind = "drop-marker"
)

// Action is the decision for one path. SizeMismatch flags equal mtimes
// with different sizes, resolved in favour of the local copy.
type Action struct {
	Kind         ActionKind
	Path         string
	SizeMismatch bool
}

// Decide compares the two replicas' state for one path. A nil record means
// the replica holds nothing for it. Timestamps are compared at one-second
// resolution; on a tie between a file and a marker the marker wins.
func Decide(local, remote *models.FileRecord, keepMarkers bool) Action {
	path := ""
	switch {
	case local != nil:
		path = local.Path
	case remote != nil:
		path = remote.Path
	}
	act := func(kind ActionKind) Action { return Action{Kind: kind, Path: path} }

	switch {
	case local == nil && remote == nil:
		return act(ActionNone)

	case remote == nil:
		if !local.Deleted {
			return act(ActionUpload)
		}
		if keepMarkers {
			return act(ActionNone)
		}
		return act(ActionPushDeletion)

	case local == nil:
		if remote.Deleted {
			return act(ActionNone)
		}
		return act(ActionDownload)

	case local.Deleted && remote.Deleted:
		if keepMarkers {
			return act(ActionNone)
		}
		return act(ActionDropMarker)

	case !local.Deleted && !remote.Deleted:
		switch {
		case local.Unix() > remote.Unix():
			return act(ActionUpload)
		case local.Unix() < remote.Unix():
			return act(ActionDownload)
		case local.Size != remote.Size:
			a := act(ActionUpload)
			a.SizeMismatch = true
			return a
		default:
			return act(ActionNone)
		}

	case remote.Deleted:
		if local.Unix() > remote.Unix() {
			return act(ActionUpload)
		}
		return act(ActionApplyDeletion)

	default:
		if remote.Unix() > local.Unix() {
			return act(ActionDownload)
		}
		return act(ActionPushDeletion)
	}
}

// pushes reports whether the action changes the remote.
func (a Action) pushes() bool {
	return a.Kind == ActionUpload || a.Kind == ActionPushDeletion
}
