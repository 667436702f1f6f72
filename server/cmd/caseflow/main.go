package main

import (
	"gitlab.com/caseflow-workflow/caseflow/server/commands"
)

func main() {
	commands.Execute()
}
