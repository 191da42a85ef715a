package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/lomehong/pluginadmin/pkg/config"
	"github.com/lomehong/pluginadmin/pkg/core"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
	"github.com/spf13/cobra"
)

// version 构建时通过 -ldflags 注入
var version = "dev"

var (
	cfgFile string
	user    string
	rootCmd = &cobra.Command{
		Use:   "pluginadmin",
		Short: "插件管理后台",
		Long: `插件管理后台：列出已安装、本地和远程插件，
安装、重新安装、升级和卸载插件，并提供Web管理接口。`,
		SilenceUsage: true,
	}
)

func init() {
	// 全局标志
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVarP(&user, "user", "u", "admin", "执行操作的用户")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newActionCmd(api.ActionInstall, "安装或升级插件"))
	rootCmd.AddCommand(newActionCmd(api.ActionReinstall, "重新安装插件"))
	rootCmd.AddCommand(newActionCmd(api.ActionUninstall, "卸载插件"))
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(removableCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(settingsCmd)
}

// withApp 加载配置、初始化应用程序后执行fn
func withApp(fn func(app *core.App) error) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	app := core.NewApp(cfg)
	app.SetVersion(version)
	if err := app.Init(); err != nil {
		return fmt.Errorf("初始化应用程序失败: %w", err)
	}
	defer app.Close()

	return fn(app)
}

func requestContext() api.RequestContext {
	return api.RequestContext{User: user, Remote: "cli"}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pluginadmin %s\n", version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动Web管理接口",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *core.App) error {
			return app.Run(context.Background())
		})
	},
}

func newListCmd() *cobra.Command {
	var req api.ListRequest
	var typ string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "列出插件",
		RunE: func(cmd *cobra.Command, args []string) error {
			source, ok := api.ParseSource(typ)
			if !ok {
				return fmt.Errorf("未知的插件来源: %s", typ)
			}
			req.Type = source
			return withApp(func(app *core.App) error {
				res := app.Controller().ListPage(cmd.Context(), req)
				if !res.OK() {
					printMessages(cmd, res.Messages)
					return fmt.Errorf("列出插件失败")
				}
				renderPlugins(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", string(api.SourceInstalled), "插件来源: installed, local, remote")
	cmd.Flags().StringVarP(&req.Filter, "filter", "f", "", "按标题过滤")
	cmd.Flags().StringVar(&req.Sort, "sort", "", "排序字段")
	cmd.Flags().StringVar(&req.Dir, "dir", api.DirAsc, "排序方向: ASC, DESC")
	cmd.Flags().IntVar(&req.Start, "start", 0, "起始位置")
	cmd.Flags().IntVar(&req.Limit, "limit", api.DefaultLimit, "每页数量")
	return cmd
}

func newActionCmd(action, short string) *cobra.Command {
	var useRemote bool

	cmd := &cobra.Command{
		Use:   action + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.ActionRequest{Action: action, Name: args[0]}
			if useRemote {
				req.Mode = api.ModeRemote
			}
			return withApp(func(app *core.App) error {
				res := app.Controller().HandleAction(cmd.Context(), requestContext(), req)
				return report(cmd, res)
			})
		},
	}

	if action != api.ActionUninstall {
		cmd.Flags().BoolVarP(&useRemote, "remote", "r", false, "从远程服务器下载插件包")
	}
	return cmd
}

var statusCmd = &cobra.Command{
	Use:   "status ID active|inactive",
	Short: "修改插件状态",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("无效的插件ID: %s", args[0])
		}
		return withApp(func(app *core.App) error {
			return report(cmd, app.Controller().UpdateStatus(cmd.Context(), requestContext(), id, args[1]))
		})
	},
}

var removableCmd = &cobra.Command{
	Use:   "removable NAME true|false",
	Short: "设置插件是否允许卸载",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		removable, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("无效的取值: %s", args[1])
		}
		return withApp(func(app *core.App) error {
			return report(cmd, app.Controller().SetRemovable(cmd.Context(), requestContext(), args[0], removable))
		})
	},
}

var docsCmd = &cobra.Command{
	Use:   "docs NAME",
	Short: "显示插件文档",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *core.App) error {
			renderDocs(cmd.OutOrStdout(), app.Controller().Documentation(cmd.Context(), args[0]))
			return nil
		})
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "显示全局配置",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *core.App) error {
			values, err := app.Controller().Settings(cmd.Context())
			if err != nil {
				return err
			}
			renderSettings(cmd.OutOrStdout(), values)
			return nil
		})
	},
}

// report 输出操作结果，失败时返回错误以设置退出码
func report(cmd *cobra.Command, res api.ActionResult) error {
	printMessages(cmd, res.Messages)
	if !res.Result {
		return fmt.Errorf("操作失败")
	}
	return nil
}

func printMessages(cmd *cobra.Command, messages []string) {
	for _, m := range messages {
		fmt.Fprintln(cmd.OutOrStdout(), m)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
