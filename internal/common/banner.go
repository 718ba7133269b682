package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// AppName is the display name used by the banner and page titles
const AppName = "Institutional Equity Research Agent"

// PrintBanner displays the startup banner and logs the effective provider settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetWidth(72).
		SetBold(true)

	b.PrintTopLine()
	b.PrintCenteredText(AppName)
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", GetVersion(), 14)
	b.PrintKeyValue("Provider", string(config.LLM.DefaultProvider), 14)
	b.PrintKeyValue("Parser", config.Parser.Mode, 14)
	b.PrintBottomLine()

	logger.Info().
		Str("version", GetVersion()).
		Str("provider", string(config.LLM.DefaultProvider)).
		Str("parser_mode", config.Parser.Mode).
		Str("reports_dir", config.Reports.Dir).
		Msg(AppName)
}
