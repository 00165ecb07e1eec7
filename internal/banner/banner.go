package banner

import (
	"github.com/charmbracelet/lipgloss"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(lipgloss.Color("212")).
		Bold(true)

	ascii := `
  ____  ____  ____  ___ _   _ _____
 / __ \|  _ \/ __ \|_ _| \ | |_   _|
| |  | | |_) | |  | || ||  \| | | |
| |__| |  __/| |__| || || |\  | | |
 \___\_\_|    \____/|___|_| \_| |_|`

	return "\n" + style.Render(ascii) + "\n"
}
