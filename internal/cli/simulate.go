package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/app"
)

var (
	simulateText    string
	simulateAuthor  string
	simulateSource  string
	simulateDeliver bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一条文本事件并跑完告警流程",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateText == "" {
			return errors.New("--text 必须提供")
		}

		opts := app.SimulateOptions{
			Text:    simulateText,
			Author:  simulateAuthor,
			Source:  simulateSource,
			Deliver: simulateDeliver,
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateText, "text", "", "事件正文")
	simulateCmd.Flags().StringVar(&simulateAuthor, "author", "", "作者 handle")
	simulateCmd.Flags().StringVar(&simulateSource, "source", "", "事件来源")
	simulateCmd.Flags().BoolVar(&simulateDeliver, "deliver", false, "通过已配置通道真实发送")
}
