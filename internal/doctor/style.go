// SPDX-License-Identifier: Apache-2.0

package doctor

import "github.com/charmbracelet/lipgloss"

const bannerWidth = 99

var (
	errorBanner      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	resolutionBanner = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	errorGutter      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	resolutionGutter = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	labelStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	metaStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	linkStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	textStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
)

// banner renders a title padded with asterisks to the full banner width.
func banner(title string) string {
	if title == "" {
		return lipgloss.PlaceHorizontal(bannerWidth, lipgloss.Left, "", lipgloss.WithWhitespaceChars("*"))
	}
	return lipgloss.PlaceHorizontal(bannerWidth, lipgloss.Center, " "+title+" ", lipgloss.WithWhitespaceChars("*"))
}
