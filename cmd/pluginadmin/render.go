package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
)

// renderPlugins 以表格输出插件列表
func renderPlugins(w io.Writer, res api.ListResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Name", "Title", "Version", "Compatibility", "Date", "Status", "Actions"})
	for _, d := range res.Data {
		t.AppendRow(table.Row{d.Name, d.Title, d.Version, d.Compatibility, d.Date, d.Status, actions(d)})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "Total", res.Total})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Title", WidthMax: 40},
		{Name: "Actions", Align: text.AlignLeft},
	})
	t.SetStyle(table.StyleLight)
	t.Render()
}

// actions 汇总描述符上的可用操作
func actions(d api.Descriptor) string {
	var s string
	add := func(ok bool, name string) {
		if !ok {
			return
		}
		if s != "" {
			s += ","
		}
		s += name
	}
	add(d.Installable, "install")
	add(d.Reinstall, "reinstall")
	add(d.Upgrade != "", "upgrade")
	add(d.Uninstall, "uninstall")
	add(d.Remove, "remove")
	return s
}

// renderDocs 输出文档标签页和信息卡片
func renderDocs(w io.Writer, res api.DocumentationResult) {
	if len(res.Tabs) == 0 && res.Info == "" {
		fmt.Fprintln(w, "没有文档")
		return
	}
	for _, tab := range res.Tabs {
		fmt.Fprintf(w, "== %s ==\n%s\n\n", tab.Title, tab.HTML)
	}
	if res.Info != "" {
		fmt.Fprintln(w, res.Info)
	}
}

// renderSettings 按名称排序输出配置
func renderSettings(w io.Writer, values map[string]string) {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Name", "Value"})
	for _, k := range names {
		t.AppendRow(table.Row{k, values[k]})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
