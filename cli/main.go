package main

import (
	"fmt"
	"os"

	"github.com/supabase/supabase-sub056/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
