// Package internaldefs reads a labkit engine into the metric families both
// exporters publish: names, labels, and the cumulative latency histogram.
//
// Exporters call [Collect] once per scrape or collection cycle and only
// translate the resulting [Sample] into their own format.
package internaldefs
