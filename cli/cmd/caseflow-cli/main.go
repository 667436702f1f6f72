package main

import (
	"gitlab.com/caseflow-workflow/caseflow/cli/commands"
)

func main() {
	commands.Execute()
}
