// Package ui implements the interactive migration flow using bubbletea's Elm architecture.
//
// The TUI walks through four views:
//  1. [PromptView] : Ask for source URL, source project, destination URL and destination project, in that order
//  2. [ConfirmView] : Confirm the migration
//  3. [TransferView] : Stream progress lines from the engine
//  4. [ResultView] : Show the run summary and wait for enter to close
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the [RunFunc], so the engine never blocks on rendering.
//
// Keyboard navigation uses tab/shift+tab between prompts, enter to accept, y/n to confirm and ctrl+c to quit,
// with contextual help displayed via charmbracelet/bubbles/help.
package ui
