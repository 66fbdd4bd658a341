package web

import (
	"strconv"
	"time"

	"github.com/sprintboard/internal/domain"
)

// FormState is the participant-entered half of the capture form. It
// round-trips through failed submissions so nothing typed is lost.
type FormState struct {
	Name   string
	Age    string
	Gender string
}

// formPage is the template data for the form step
type formPage struct {
	Params      QueryParams
	Form        FormState
	PreviewRank string
	Error       string
}

// rowView is one rendered board line
type rowView struct {
	Pos     int
	Time    string
	Name    string
	Age     string
	Gender  string
	Country string
	Date    string
	Me      bool
}

// boardView is one rendered leaderboard
type boardView struct {
	Title string
	Rows  []rowView
}

// boardsPage is the template data for the leaderboards step
type boardsPage struct {
	Name        string
	CountryRank string
	GlobalRank  string
	Boards      []boardView
}

// buildBoard renders rows in the order received. The position column is
// the 1-based array position, not a stored rank; the backend owns the
// ordering and the slice size. Rows matching me are flagged for highlight.
func buildBoard(title string, rows []domain.Row, me *domain.MeRow, now time.Time) boardView {
	views := make([]rowView, 0, len(rows))
	for i, row := range rows {
		view := rowView{
			Pos:     i + 1,
			Time:    formatSeconds(row.TimeSeconds),
			Name:    row.Name,
			Country: row.Country,
			Date:    rowDate(row, now),
			Me:      me != nil && me.Matches(row),
		}
		if row.Age != nil {
			view.Age = strconv.Itoa(*row.Age)
		}
		if row.Gender != nil {
			view.Gender = *row.Gender
		}
		views = append(views, view)
	}
	return boardView{Title: title, Rows: views}
}

// buildBoardsPage assembles the leaderboards step from a successful
// registration. Both board slices and the me row are set together or not
// at all, so the page never renders a partial success.
func buildBoardsPage(result *domain.RegistrationResult, countryTitle, globalTitle string, now time.Time) boardsPage {
	page := boardsPage{
		Name: result.Me.Name,
		Boards: []boardView{
			buildBoard(countryTitle, result.BoardCountry, &result.Me, now),
			buildBoard(globalTitle, result.BoardGlobal, &result.Me, now),
		},
	}
	if result.Me.RankCountry != nil {
		page.CountryRank = ordinal(*result.Me.RankCountry)
	}
	if result.Me.RankGlobal != nil {
		page.GlobalRank = ordinal(*result.Me.RankGlobal)
	}
	return page
}
