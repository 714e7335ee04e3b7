package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/emr/console/internal/api"
	"github.com/emr/console/internal/platform/session"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			MarginRight(2)
	cardValueStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
)

func renderTable(headers []string, widths []int, rows [][]string) string {
	var b strings.Builder

	var headerCells []string
	for i, h := range headers {
		headerCells = append(headerCells, pad(h, widths[i]))
	}
	b.WriteString(headerStyle.Render(strings.Join(headerCells, "  ")))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("-", tableWidth(widths))))
	b.WriteString("\n")

	for _, row := range rows {
		var cells []string
		for i, cell := range row {
			cells = append(cells, pad(cell, widths[i]))
		}
		b.WriteString(strings.Join(cells, "  "))
		b.WriteString("\n")
	}
	return b.String()
}

func tableWidth(widths []int) int {
	total := 2 * (len(widths) - 1)
	for _, w := range widths {
		total += w
	}
	return total
}

// pad fits s to a fixed display width. Truncation works on display cells,
// not bytes, so multibyte runes never split and wide characters keep the
// columns aligned.
func pad(s string, width int) string {
	if lipgloss.Width(s) > width {
		// A wide rune at the cut can leave the result a cell short, so
		// pad again after truncating.
		s = truncate(s, width-1) + "…"
	}
	return s + strings.Repeat(" ", width-lipgloss.Width(s))
}

// truncate shortens s to at most maxWidth display cells.
func truncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	runes := []rune(s)
	for length := len(runes) - 1; length >= 0; length-- {
		candidate := string(runes[:length])
		if lipgloss.Width(candidate) <= maxWidth {
			return candidate
		}
	}
	return ""
}

// Patients renders a patient list table.
func Patients(patients []api.Patient) string {
	if len(patients) == 0 {
		return dimStyle.Render("No patients found.") + "\n"
	}

	rows := make([][]string, 0, len(patients))
	for _, p := range patients {
		rows = append(rows, []string{
			fmt.Sprintf("%d", p.ID),
			p.MRN,
			p.FirstName + " " + p.LastName,
			p.Gender,
			p.DateOfBirth,
			p.PhoneNumber,
			fmt.Sprintf("%d", p.FacilityID),
		})
	}
	return renderTable(
		[]string{"ID", "MRN", "NAME", "GENDER", "DOB", "PHONE", "FACILITY"},
		[]int{6, 10, 28, 8, 12, 16, 8},
		rows,
	)
}

// PatientDetail renders one patient record.
func PatientDetail(p *api.Patient) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(p.FirstName+" "+p.LastName) + "\n")
	fields := [][2]string{
		{"MRN", p.MRN},
		{"Gender", p.Gender},
		{"Date of birth", p.DateOfBirth},
		{"Phone", p.PhoneNumber},
		{"Email", p.Email},
		{"Address", p.Address},
		{"Insurance", p.InsuranceProvider},
		{"Policy number", p.InsurancePolicyNumber},
		{"Facility", fmt.Sprintf("%d", p.FacilityID)},
		{"Services", strings.Join(p.Services, ", ")},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("%s %s\n", dimStyle.Render(pad(f[0]+":", 16)), f[1]))
	}
	return b.String()
}

// Facilities renders a facility list table.
func Facilities(facilities []api.Facility) string {
	if len(facilities) == 0 {
		return dimStyle.Render("No facilities found.") + "\n"
	}

	rows := make([][]string, 0, len(facilities))
	for _, f := range facilities {
		rows = append(rows, []string{
			fmt.Sprintf("%d", f.ID),
			f.Name,
			f.Type,
			f.PhoneNumber,
			f.Address,
		})
	}
	return renderTable(
		[]string{"ID", "NAME", "TYPE", "PHONE", "ADDRESS"},
		[]int{6, 28, 12, 16, 36},
		rows,
	)
}

// Services renders the service catalog.
func Services(services []api.Service) string {
	if len(services) == 0 {
		return dimStyle.Render("No services found.") + "\n"
	}

	rows := make([][]string, 0, len(services))
	for _, s := range services {
		rows = append(rows, []string{
			s.ID,
			s.Name,
			s.Type,
			fmt.Sprintf("%.2f", s.Price),
			s.Description,
		})
	}
	return renderTable(
		[]string{"ID", "NAME", "TYPE", "PRICE", "DESCRIPTION"},
		[]int{6, 24, 14, 10, 40},
		rows,
	)
}

// DashboardStats aggregates the counts the dashboard shows.
type DashboardStats struct {
	Patients   int
	Facilities int
	Services   int
}

// Dashboard renders the stat cards.
func Dashboard(user *session.User, stats DashboardStats) string {
	var b strings.Builder
	if user != nil {
		b.WriteString(headerStyle.Render("Welcome, "+user.Username) + " " + dimStyle.Render("("+user.Role+")") + "\n\n")
	}

	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		cardStyle.Render("Patients\n"+cardValueStyle.Render(fmt.Sprintf("%d", stats.Patients))),
		cardStyle.Render("Facilities\n"+cardValueStyle.Render(fmt.Sprintf("%d", stats.Facilities))),
		cardStyle.Render("Services\n"+cardValueStyle.Render(fmt.Sprintf("%d", stats.Services))),
	)
	b.WriteString(cards)
	b.WriteString("\n")
	return b.String()
}

// Whoami renders the logged-in user.
func Whoami(user *session.User) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(user.Username) + "\n")
	b.WriteString(fmt.Sprintf("%s %s\n", dimStyle.Render(pad("ID:", 12)), user.ID))
	b.WriteString(fmt.Sprintf("%s %s\n", dimStyle.Render(pad("Email:", 12)), user.Email))
	b.WriteString(fmt.Sprintf("%s %s\n", dimStyle.Render(pad("Role:", 12)), user.Role))
	if user.FacilityID != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", dimStyle.Render(pad("Facility:", 12)), user.FacilityID))
	}
	return b.String()
}

// LoginPrompt is shown when there is no user and the session is not loading.
func LoginPrompt() string {
	return dimStyle.Render("Not logged in. Run 'emr-console login' to sign in.") + "\n"
}
