/*
Package status records what happened to every project during a run and
prints the end-of-run report.

	            +-------------+
	            |   Report    |
	            | (per run)   |
	            +------+------+
	                   |
	      +-----------+-----------+
	      |           |           |
	+-----+---+ +-----+---+ +-----+---+
	|  mill   | | render  | | upload  |
	| outcome | | outcome | | outcome |
	+---------+ +---------+ +---------+

🎯 Purpose:
- Track one outcome per project and stage (done, skipped, failed)
- Keep the reason for skips and the error for failures
- Print a colored summary followed by the final "Done." line

🔄 Flow:
1. The mill, render and upload stages call Record as each project finishes
2. Stages later in the run ask Succeeded to decide whether to go on
3. The command prints the report with Write

⚡ Key Responsibilities:
- Safe for concurrent use by parallel mill workers
- Projects keep the order in which they were first recorded
- Failures never stop the report from being written

🔍 Example:

	report := status.NewReport()
	report.Record("out1", status.StageMill, status.Done, nil)
	report.Skip("out2", status.StageMill, "destination exists")
	report.Write(os.Stdout)
*/
package status
