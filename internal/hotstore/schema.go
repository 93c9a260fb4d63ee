// Package hotstore implements the Postgres hot store for recent sensor
// samples. Rows live here until the archiver moves them to cold storage.
package hotstore

const schemaDDL = `
CREATE TABLE IF NOT EXISTS samples (
    site       TEXT NOT NULL,
    point_name TEXT NOT NULL,
    ts         BIGINT NOT NULL,
    value      DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (site, point_name, ts)
);
CREATE INDEX IF NOT EXISTS idx_samples_site_ts ON samples (site, ts);
CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples (ts);
`
