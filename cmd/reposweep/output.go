package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/John-Robertt/reposweep/internal/domain"
)

// emitReport 按 stdout 类型输出最终结果。
//
// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（摘要走 stderr）。
// stdout 为 TTY：输出摘要行与重复簇表格；失败条目写到 stderr。
func emitReport(stdout, stderr io.Writer, rr domain.RunReport) {
	if isTerminal(stdout) {
		fmt.Fprintln(stdout, summaryLine(rr))
		if t := clusterTable(rr); t != "" {
			fmt.Fprintln(stdout, t)
		}
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			key := it.ID
			if key == "" {
				key = "<run>"
			}
			fmt.Fprintf(stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summaryLine(rr))
}

func summaryLine(rr domain.RunReport) string {
	s := rr.Summary
	return fmt.Sprintf("完成：records=%d clusters=%d duplicates=%d removed=%d planned=%d failed=%d skipped=%d protected=%d unhashed=%d",
		s.Records, s.Clusters, s.DuplicateClusters, s.Removed, s.Planned, s.Failed, s.Skipped, s.Protected, s.Unhashed,
	)
}

// clusterTable 渲染重复簇（成员 > 1）的明细；没有重复簇时返回空串。
func clusterTable(rr domain.RunReport) string {
	byID := make(map[string]domain.ItemResult, len(rr.Items))
	for _, it := range rr.Items {
		byID[it.ID] = it
	}

	var rows [][]string
	for _, c := range rr.Clusters {
		if len(c.Members) < 2 {
			continue
		}
		for _, id := range c.Members {
			it := byID[id]
			role := it.Status
			dist := ""
			if id == c.Keeper {
				role = "keeper"
			} else {
				dist = strconv.FormatFloat(it.Distance, 'f', 4, 64)
			}
			rows = append(rows, []string{strconv.Itoa(c.Index), id, it.Creator, dist, role})
		}
	}
	if len(rows) == 0 {
		return ""
	}
	return renderTable(
		[]string{"Cluster", "ID", "Creator", "Distance", "Status"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// pickProgressWriter 决定进度输出位置：默认 stderr；仅 stdout 为终端时退化到 stdout。
func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	if isTerminal(stderr) {
		return stderr, true
	}
	if isTerminal(stdout) {
		return stdout, true
	}
	return nil, false
}
