package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/l1jgo/modscript/internal/script"
)

// ── Startup display helpers ────────────────────────────────────────

var (
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("14")).
			Padding(0, 4).
			Bold(true)
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	countStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

func printBanner(name string) {
	fmt.Println()
	fmt.Println(lipgloss.NewStyle().MarginLeft(2).Render(
		bannerStyle.Render("modscript " + Version + "\n" + dimStyle.Render("behavior script runtime")),
	))
	fmt.Printf("  %s %s\n\n", lipgloss.NewStyle().Bold(true).Render("world:"), name)
}

func printSection(title string) {
	lineLen := max(46-lipgloss.Width(title)-1, 3)
	fmt.Println("  " + sectionStyle.Render("── "+title+" "+strings.Repeat("─", lineLen)))
}

func printStat(label string, count int) {
	num := fmt.Sprintf("%d", count)
	dots := max(42-lipgloss.Width(label)-len(num), 3)
	fmt.Printf("  %s %s %s\n", label, dimStyle.Render(strings.Repeat("·", dots)), countStyle.Render(num))
}

func printOK(msg string) {
	fmt.Printf("  %s %s\n", okStyle.Render("✓"), msg)
}

func printFail(msg string) {
	fmt.Printf("  %s %s\n", errStyle.Render("✗"), msg)
}

func printReady(msg string) {
	fmt.Printf("  %s %s\n", okStyle.Render("▶"), msg)
}

// printReport shows preload counters and every failure with its diagnostics.
func printReport(r *script.PreloadReport) {
	printStat("script definitions", r.Definitions)
	printStat("compiled", r.Compiled)
	printStat("cache hits", r.CacheHits)
	printStat("plugin scripts", r.Plugins)
	for _, f := range r.Failures {
		printFail(fmt.Sprintf("%s %s", f.ID, dimStyle.Render("("+f.ModID+")")))
		diags := f.Diagnostics()
		if len(diags) == 0 {
			fmt.Printf("      %s\n", f.Err)
			continue
		}
		for _, d := range diags {
			fmt.Printf("      %s\n", d)
		}
	}
	if r.OK() {
		printOK(fmt.Sprintf("preload finished in %s", r.Elapsed.Round(time.Millisecond)))
	}
}
