package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "analyst"}

	root.AddCommand(serveCMD(), migrateCMD(), ingestCMD(), chatCMD())
	_ = root.Execute()
}
