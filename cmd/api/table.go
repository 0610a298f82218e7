package main

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

func showTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)

	for _, row := range data {
		table.Append(row)
	}

	fmt.Fprintln(w)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.Render()
	fmt.Fprintln(w)
}
