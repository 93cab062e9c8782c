// Package action is the closed set of things a button press can ask for,
// plus the codec for the callback payload carried by each button.
package action

// Action is implemented only by the types in this package.
type Action interface {
	isAction()
}

type (
	ReturnToMain struct{}

	OpenTitle struct {
		Slug string
	}
	OpenEpisode struct {
		Slug    string
		Episode int
	}
	// AdvanceNext plays episode+1 keeping the chosen variant.
	AdvanceNext struct {
		Slug    string
		Episode int
	}
	// AdvanceNextOtherVariant plays episode+1 when it lacks the chosen variant.
	AdvanceNextOtherVariant struct {
		Slug    string
		Episode int
	}
	GoPrevious struct {
		Slug    string
		Episode int
	}
	ToggleFavorite struct {
		Slug    string
		Episode int
	}
	ToggleWatched struct {
		Slug    string
		Episode int
	}
	ChooseVariant struct {
		Slug    string
		Episode int
		Variant string
	}
	ShowContinuationList struct {
		Page int
	}
	RemoveFromContinuation struct {
		Slug string
	}

	ShowGenres struct{}
	ShowGenre  struct {
		Genre string
		Page  int
	}
	ShowOngoing struct{}
	RandomTitle struct{}

	ShowEpisodeList struct {
		Slug string
	}
	ShowFavorites struct{}
	ShowWatched   struct {
		Page int
	}
	ShowContinuationItem struct {
		Slug string
	}
	ContinuePlay struct {
		Slug string
	}
	StartSearch struct{}
)

func (ReturnToMain) isAction()            {}
func (OpenTitle) isAction()               {}
func (OpenEpisode) isAction()             {}
func (AdvanceNext) isAction()             {}
func (AdvanceNextOtherVariant) isAction() {}
func (GoPrevious) isAction()              {}
func (ToggleFavorite) isAction()          {}
func (ToggleWatched) isAction()           {}
func (ChooseVariant) isAction()           {}
func (ShowContinuationList) isAction()    {}
func (RemoveFromContinuation) isAction()  {}
func (ShowGenres) isAction()              {}
func (ShowGenre) isAction()               {}
func (ShowOngoing) isAction()             {}
func (RandomTitle) isAction()             {}
func (ShowEpisodeList) isAction()         {}
func (ShowFavorites) isAction()           {}
func (ShowWatched) isAction()             {}
func (ShowContinuationItem) isAction()    {}
func (ContinuePlay) isAction()            {}
func (StartSearch) isAction()             {}
