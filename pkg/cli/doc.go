/*
Package cli provides command-line helpers shared by the compass commands.

Output Formatting:

Command results are printed as text tables, JSON or CSV. Tabular results
implement Table:

	formatter, err := cli.NewFormatter(cli.FormatText)
	if err != nil {
		return err
	}
	if err := formatter.FormatTo(os.Stdout, ruleTable); err != nil {
		return err
	}

Progress Reporting:

Batch operations report progress on stderr:

	progress := cli.NewProgressReporter(os.Stderr, "contexts")
	progress.Start(int64(len(contexts)))
	for i := range contexts {
		// Evaluate
		progress.Update(int64(i + 1))
	}
	progress.Finish()

Exit Codes:

Commands return errors; main maps them to a process exit code with
ExitCode. A *ExitError carries an explicit code, for example when a lint
run finds invalid rules.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
