//
// web service that lets students look up their results for a test
// by roll number.
// results are held in a google sheets spreadsheet, one tab per test;
// the service finds the student's row, works out their rank in the
// cohort from the total score column and derives a percentile so
// students can see how they compare without seeing anyone else's
// results.
//
package otfresults
