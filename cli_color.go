package main

import "github.com/fatih/color"

var (
	red   = color.New(color.FgRed, color.Bold).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
)
